package agent

import (
	"github.com/cpp11nullptr/vikki/internal/capability"
	"github.com/cpp11nullptr/vikki/internal/storage"
	"github.com/cpp11nullptr/vikki/internal/storage/filestore"
	"github.com/cpp11nullptr/vikki/internal/storage/memory"
	"github.com/cpp11nullptr/vikki/internal/storage/s3store"
	"github.com/cpp11nullptr/vikki/internal/storage/sqlstore"
)

// builtinStorages returns the storage backends compiled into the agent.
func builtinStorages() []capability.Module[storage.Storage] {
	return []capability.Module[storage.Storage]{
		capability.Builtin(memory.Name, func() storage.Storage { return memory.New() }),
		capability.Builtin(sqlstore.SQLiteName, func() storage.Storage { return sqlstore.NewSQLite() }),
		capability.Builtin(sqlstore.PostgresName, func() storage.Storage { return sqlstore.NewPostgres() }),
		capability.Builtin(filestore.Name, func() storage.Storage { return filestore.New() }),
		capability.Builtin(s3store.Name, func() storage.Storage { return s3store.New() }),
	}
}
