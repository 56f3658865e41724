package storage

import (
	"context"
	"fmt"

	"github.com/levenlabs/go-lflag"
)

// Configured sets up the Loader backend based on flags.
func Configured() Loader {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, postgres)")

	var l struct{ Loader }

	fs := configuredFirestore()
	pg := configuredPostgres()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			l.Loader = fs
		case "postgres":
			if err := pg.Validate(); err != nil {
				panic(fmt.Sprintf("postgres validation failed: %v", err))
			}
			if err := pg.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
			l.Loader = pg
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &l
}
