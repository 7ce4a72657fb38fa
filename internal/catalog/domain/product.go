package domain

// Product is the catalog's view of a sellable item. The ordering core reads
// products but never writes them; prices are snapshotted onto orders at
// creation time.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Regions    []string
	Active     bool
}

// SoldIn reports whether the product is available in the given region.
func (p Product) SoldIn(region string) bool {
	for _, r := range p.Regions {
		if r == region {
			return true
		}
	}
	return false
}
