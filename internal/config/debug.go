package config

import "os"

func IsDebug() bool {
	return os.Getenv("RAGLINE_DEBUG") == "1"
}
