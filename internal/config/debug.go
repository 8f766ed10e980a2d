package config

import "os"

func IsDebug() bool {
	return os.Getenv("BOTSTUDIO_DEBUG") == "1"
}
