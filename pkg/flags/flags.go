package flags

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/amargherio/linkerd2-proxy/pkg/version"
)

// ConfigureAndParse adds flags that are common to all go processes. This
// func calls flag.Parse(), so it should be called after all other flags
// have been configured.
func ConfigureAndParse() {
	logLevel := flag.String("log-level", log.InfoLevel.String(),
		"log level, must be one of: panic, fatal, error, warn, info, debug")
	logFormat := flag.String("log-format", "plain",
		"log format, must be one of: plain, json")
	printVersion := flag.Bool("version", false, "print version and exit")

	flag.Parse()

	setLogFormat(*logFormat)
	setLogLevel(*logLevel)
	maybePrintVersionAndExit(*printVersion)
}

func setLogFormat(format string) {
	switch format {
	case "", "plain":
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.Fatalf("unknown log-format: %s", format)
	}
}

func setLogLevel(logLevel string) {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("invalid log-level: %s", logLevel)
	}
	log.SetLevel(level)
}

func maybePrintVersionAndExit(printVersion bool) {
	if printVersion {
		fmt.Println(version.Version)
		os.Exit(0)
	}
	log.Infof("running version %s", version.Version)
}
