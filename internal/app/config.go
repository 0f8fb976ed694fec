package app

import (
	"github.com/yungbote/termgraph-backend/internal/platform/envutil"
)

type Config struct {
	ServiceName     string
	Environment     string
	Port            string
	RefsetTypesPath string
	IdentifierStart int64
}

func LoadConfig() Config {
	return Config{
		ServiceName:     envutil.Str("SERVICE_NAME", "termgraph"),
		Environment:     envutil.Str("ENVIRONMENT", "development"),
		Port:            envutil.Str("PORT", "8080"),
		RefsetTypesPath: envutil.Str("REFSET_TYPES_PATH", "configs/refset-types.yaml"),
		IdentifierStart: int64(envutil.Int("IDENTIFIER_START", 100)),
	}
}
