package validators

import "go.mongodb.org/mongo-driver/bson"

// ServiceValidator mirrors the constraints the reservation validator applies to model.Service.
var ServiceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"name", "duration_min", "price"},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"duration_min": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  1440,
			},

			"price": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 500,
			},
		},
	},
}
