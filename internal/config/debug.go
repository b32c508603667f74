package config

import "os"

func IsDebug() bool {
	return os.Getenv("RUMORMILL_DEBUG") == "1"
}
