package repository

import (
	"errors"
	"sync"

	"gorm.io/gorm"
)

// ErrFactoryNotInitialized is returned before InitializeFactory ran.
var ErrFactoryNotInitialized = errors.New("repository factory not initialized")

// Factory hands out one shared set of school, submission, user and audit
// repositories per database handle.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// GetRepositories builds the repositories on first use.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalFactory *Factory
	factoryOnce   sync.Once
)

// InitializeFactory sets up the process wide factory. Later calls are no-ops.
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

func GetGlobalFactory() (*Factory, error) {
	if globalFactory == nil {
		return nil, ErrFactoryNotInitialized
	}
	return globalFactory, nil
}

// GetGlobalRepositories returns the repositories of the process wide factory.
func GetGlobalRepositories() (*Repositories, error) {
	f, err := GetGlobalFactory()
	if err != nil {
		return nil, err
	}
	return f.GetRepositories(), nil
}
