package common

// DataType identifies one of the synchronized mail-data domains.
type DataType string

const (
	DataTypeAccounts    DataType = "accounts"
	DataTypeContacts    DataType = "contacts"
	DataTypePreferences DataType = "preferences"
	DataTypeSignatures  DataType = "signatures"
)

// DataTypes lists every domain the engine synchronizes, in a stable order.
var DataTypes = []DataType{
	DataTypeAccounts,
	DataTypeContacts,
	DataTypePreferences,
	DataTypeSignatures,
}

// ValidDataType reports whether s names a synchronized domain.
func ValidDataType(s string) bool {
	switch DataType(s) {
	case DataTypeAccounts, DataTypeContacts, DataTypePreferences, DataTypeSignatures:
		return true
	}
	return false
}
