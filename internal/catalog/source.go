package catalog

// Source supplies the catalog checkout prices against.
type Source interface {
	Catalog() *ShopCatalog
}

// StaticSource serves a catalog parsed and validated at startup.
type StaticSource struct {
	catalog *ShopCatalog
}

func NewStaticSource(catalog *ShopCatalog) *StaticSource {
	return &StaticSource{catalog: catalog}
}

func (s *StaticSource) Catalog() *ShopCatalog {
	return s.catalog
}
