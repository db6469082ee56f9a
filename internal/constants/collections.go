// Package constants holds names shared between the stores, the task handlers
// and the query tool.
package constants

// Document store collections readable by task handlers and the query tool.
const (
	CollectionInventory    = "inventory"
	CollectionTransactions = "transactions"
	CollectionCustomers    = "customers"
	CollectionCategories   = "categories"
	CollectionDrugs        = "drugs"
)

// Collections lists every whitelisted collection in display order.
var Collections = []string{
	CollectionInventory,
	CollectionTransactions,
	CollectionCustomers,
	CollectionCategories,
	CollectionDrugs,
}

// IsCollection reports whether name is a whitelisted collection.
func IsCollection(name string) bool {
	for _, c := range Collections {
		if c == name {
			return true
		}
	}
	return false
}
