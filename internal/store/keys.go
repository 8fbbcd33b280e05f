package store

import (
	"strings"
	"unicode"
)

// Logical configuration fields that live in the data storage.
const (
	FieldUsers              = "users"
	FieldSubscriptions      = "subscriptions"
	FieldSubscriptionCaches = "subscriptionCaches"
	FieldTemplate           = "template"
	FieldSEAPIToken         = "seApiToken"
)

// DataStorageEnv selects where the data fields are read from.
const DataStorageEnv = "SB_DATASTORAGE"

var dataFields = []string{
	FieldUsers,
	FieldSubscriptions,
	FieldSubscriptionCaches,
	FieldTemplate,
	FieldSEAPIToken,
}

// StorageKey maps a camelCase field name to its env / Redis key:
// "seApiToken" -> "SB_SE_API_TOKEN".
func StorageKey(field string) string {
	var b strings.Builder
	b.Grow(len(field) + 8)
	b.WriteString("SB_")
	for i, r := range field {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func isDataField(field string) bool {
	for _, f := range dataFields {
		if f == field {
			return true
		}
	}
	return false
}

func storageKeys() []string {
	out := make([]string, len(dataFields))
	for i, f := range dataFields {
		out[i] = StorageKey(f)
	}
	return out
}
