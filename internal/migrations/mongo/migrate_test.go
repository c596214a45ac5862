package mongo

import (
	"reflect"
	"strings"
	"testing"

	"agenda/internal/migrations/mongo/validators"
	"agenda/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

func bsonFields(t *testing.T) map[string]bool {
	t.Helper()
	fields := make(map[string]bool)
	typ := reflect.TypeOf(model.Service{})
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("bson")
		name := strings.Split(tag, ",")[0]
		if name != "" && name != "-" {
			fields[name] = true
		}
	}
	return fields
}

func TestServiceValidator_MatchesModel(t *testing.T) {
	schema := validators.ServiceValidator["$jsonSchema"].(bson.M)
	fields := bsonFields(t)

	for _, name := range schema["required"].([]string) {
		if !fields[name] {
			t.Errorf("required field %q is not stored by model.Service", name)
		}
	}
	for name := range schema["properties"].(bson.M) {
		if !fields[name] {
			t.Errorf("schema property %q is not stored by model.Service", name)
		}
	}
}

func TestServicesIndexes_UniqueName(t *testing.T) {
	if len(ServicesIndexes) != 1 {
		t.Fatalf("indexes = %d", len(ServicesIndexes))
	}
	idx := ServicesIndexes[0]
	if idx.Options == nil || idx.Options.Unique == nil || !*idx.Options.Unique {
		t.Error("service name index is not unique")
	}
	keys := idx.Keys.(bson.D)
	if len(keys) != 1 || keys[0].Key != "name" {
		t.Errorf("index keys = %v", keys)
	}
}
