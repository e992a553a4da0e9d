package badger

// Repositories bundles the badger-backed repositories sharing one backend.
type Repositories struct {
	Backend     *Backend
	Collections *CollectionRepository
	Documents   *DocumentRepository
	Elements    *ElementRepository
}

// Open opens the backend at path and builds every repository on it.
func Open(path string, inMemory bool) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	return &Repositories{
		Backend:     backend,
		Collections: NewCollectionRepository(backend),
		Documents:   NewDocumentRepository(backend),
		Elements:    NewElementRepository(backend),
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must call Close when done.
func NewMemoryRepositories() (*Repositories, error) {
	return Open("", true)
}

// Close closes the shared backend.
func (r *Repositories) Close() error {
	return r.Backend.Close()
}
