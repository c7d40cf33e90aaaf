package main

import (
	"socialsync/internal/logging"
	"socialsync/internal/transport/http"
)

func main() {
	if err := http.Run(); err != nil {
		logging.Log.WithError(err).Fatal("Server failed")
	}
}
