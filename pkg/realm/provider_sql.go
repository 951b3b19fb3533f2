package realm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SQLProvider instantiates SQL-backed realms from a configuration section
// with "driver" and "dsn" keys.
type SQLProvider struct {
	Log *logrus.Logger
}

// Identifier implements Provider.
func (p *SQLProvider) Identifier() string { return SQLIdentifier }

// New opens the database and ensures the directory schema exists.
func (p *SQLProvider) New(section map[string]string) (Realm, error) {
	driver := section["driver"]
	if driver == "" {
		driver = "postgres"
	}
	dsn := section["dsn"]
	if dsn == "" {
		return nil, fmt.Errorf("realm: sql provider requires a dsn")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open realm database: %w", err)
	}

	r := NewSQLRealm(db, p.Log)
	if err := r.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}
