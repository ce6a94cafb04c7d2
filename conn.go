package docstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
)

const defaultConnectTimeout = 10 * time.Second

type MongoConfig struct {
	URI            string `json:"uri"`
	Database       string `json:"database"`
	ConnectTimeout string `json:"connectTimeout,omitempty"`
}

func (c MongoConfig) timeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return defaultConnectTimeout, nil
	}

	return time.ParseDuration(c.ConnectTimeout)
}

// Config is the file representation of a docstore setup. Indexes are keyed by
// collection name.
type Config struct {
	Mongo   MongoConfig            `json:"mongo"`
	Indexes map[string][]IndexSpec `json:"indexes,omitempty"`
}

// IndexesFor returns the WithIndexes option for a collection, or nil when the
// config declares none.
func (c Config) IndexesFor(collection string) RepositoryOption {
	specs := c.Indexes[collection]
	if len(specs) == 0 {
		return nil
	}

	return WithIndexes(specs...)
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config. %w", err)
	}

	if _, err := cfg.Mongo.timeout(); err != nil {
		return cfg, fmt.Errorf("invalid mongo.connectTimeout %q. %w", cfg.Mongo.ConnectTimeout, err)
	}

	for coll, specs := range cfg.Indexes {
		for _, spec := range specs {
			if len(spec.Fields) == 0 {
				return cfg, fmt.Errorf("%w: index %q on %s has no fields", ErrInvalidArgument, spec.Name, coll)
			}
		}
	}

	return cfg, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	return ParseConfig(data)
}

// ConnectMongo dials the server and pings it before returning the database.
func ConnectMongo(ctx context.Context, config MongoConfig) (*mongo.Database, error) {
	if config.Database == "" {
		return nil, fmt.Errorf("%w: mongo database name is empty", ErrInvalidArgument)
	}

	timeout, err := config.timeout()
	if err != nil {
		return nil, err
	}

	opts := mongoOptions.Client().ApplyURI(config.URI)
	opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb. %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb. %w", err)
	}

	return client.Database(config.Database), nil
}
