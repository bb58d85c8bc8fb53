// Package positions defines position-to-role bindings and the derived
// in-memory index the permission engine queries.
//
// A position is a named permission tier ("Staff", "Premium Council")
// independent of any concrete role; bindings realize it per guild as a
// many-to-many (position, guild, role) mapping. The Index mirrors the
// binding cache into position -> guild -> binding sets so every permission
// check avoids a linear scan of the collection.
package positions
