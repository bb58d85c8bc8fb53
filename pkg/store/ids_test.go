package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestNormalizeID(t *testing.T) {
	oid := bson.NewObjectID()

	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"string", "123456789", "123456789"},
		{"int64 snowflake", int64(823574690052571136), "823574690052571136"},
		{"int32", int32(42), "42"},
		{"int", 7, "7"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"float64", float64(99), "99"},
		{"object id", oid, oid.Hex()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.raw))
		})
	}
}
