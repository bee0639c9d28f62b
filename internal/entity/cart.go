package entity

// Cart maps store ID to the lines requested from that store.
// It is a read-only snapshot; pricing never mutates it.
type Cart map[int]StoreCart

// StoreCart maps product ID to the quantity requested.
type StoreCart map[int]int

// TotalQuantity returns the number of units requested across all lines.
func (c StoreCart) TotalQuantity() int {
	total := 0
	for _, qty := range c {
		total += qty
	}
	return total
}
