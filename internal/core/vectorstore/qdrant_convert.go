package vectorstore

import (
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/embedhq/vectorproxy/internal/core"
	"github.com/embedhq/vectorproxy/internal/models"
)

func ptr[T any](v T) *T { return &v }

func toQdrantDistance(d models.Distance) qdrant.Distance {
	switch d {
	case models.DistanceEuclid:
		return qdrant.Distance_Euclid
	case models.DistanceDot:
		return qdrant.Distance_Dot
	case models.DistanceManhattan:
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func fromQdrantDistance(d qdrant.Distance) models.Distance {
	switch d {
	case qdrant.Distance_Euclid:
		return models.DistanceEuclid
	case qdrant.Distance_Dot:
		return models.DistanceDot
	case qdrant.Distance_Manhattan:
		return models.DistanceManhattan
	default:
		return models.DistanceCosine
	}
}

func toQdrantVectors(name string, vec []float32) *qdrant.Vectors {
	if name != "" {
		return qdrant.NewVectorsMap(map[string]*qdrant.Vector{name: qdrant.NewVector(vec...)})
	}
	return qdrant.NewVectors(vec...)
}

func toQdrantFilter(f *core.FilterConditions) *qdrant.Filter {
	if f == nil {
		return nil
	}
	return &qdrant.Filter{
		Must:    toQdrantConditions(f.Must),
		MustNot: toQdrantConditions(f.MustNot),
		Should:  toQdrantConditions(f.Should),
	}
}

func toQdrantConditions(fields []core.FieldCondition) []*qdrant.Condition {
	if len(fields) == 0 {
		return nil
	}
	out := make([]*qdrant.Condition, 0, len(fields))
	for _, fc := range fields {
		out = append(out, toQdrantCondition(fc))
	}
	return out
}

func toQdrantCondition(fc core.FieldCondition) *qdrant.Condition {
	switch v := fc.Value.(type) {
	case bool:
		return qdrant.NewMatchBool(fc.Field, v)
	case int:
		return qdrant.NewMatchInt(fc.Field, int64(v))
	case int64:
		return qdrant.NewMatchInt(fc.Field, v)
	case float64:
		// payload match has no float kind; integers survive a round trip
		return qdrant.NewMatchInt(fc.Field, int64(v))
	case string:
		return qdrant.NewMatch(fc.Field, v)
	default:
		return qdrant.NewMatch(fc.Field, fmt.Sprint(fc.Value))
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	if len(payload) == 0 {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, fromQdrantValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}
