package main

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openprofiling/tracegrind/internal/callgrind"
	"github.com/openprofiling/tracegrind/internal/dumpfile"
	"github.com/openprofiling/tracegrind/internal/fileutil"
	"github.com/openprofiling/tracegrind/internal/jsonreport"
	"github.com/openprofiling/tracegrind/internal/logutil"
	"github.com/openprofiling/tracegrind/internal/profile"
)

func main() {
	var (
		tracePath  string
		dumpPath   string
		outputPath string
		format     string
		logLevel   string
	)
	flag.StringVar(&tracePath, "trace", "", "instruction trace to convert (.lz4 and .gz accepted)")
	flag.StringVar(&dumpPath, "dump", "", "objdump disassembly listing used to resolve function names")
	flag.StringVar(&outputPath, "output", "", "report destination, stdout when empty")
	flag.StringVar(&format, "format", "callgrind", "report format: callgrind or json")
	flag.StringVar(&logLevel, "log-level", "warn", "zerolog level")
	flag.Parse()

	logutil.ConfigureLogger(logLevel)

	if tracePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	resolver, err := dumpfile.Read(dumpPath)
	if err != nil {
		log.Fatal().Err(err).Str("dump", dumpPath).Msg("cannot read dump")
	}
	if !resolver.FromDump() {
		log.Warn().Msg("no dump provided, all function names will be synthetic")
	}

	prof, err := profile.BuildFile(tracePath, resolver)
	if err != nil {
		log.Fatal().Err(err).Str("trace", tracePath).Msg("cannot build profile")
	}
	if open := prof.Unfinished(); len(open) > 0 {
		log.Warn().Int("open_frames", len(open)).Msg("trace ended with calls still in flight")
	}

	var out io.Writer = os.Stdout
	if outputPath != "" {
		f, err := fileutil.Create(outputPath)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot create report")
		}
		defer f.Close()
		out = f
	}

	switch format {
	case "callgrind":
		err = callgrind.Write(prof, out)
	case "json":
		err = jsonreport.Write(prof, out)
	default:
		log.Fatal().Str("format", format).Msg("unknown report format")
	}
	if err != nil {
		log.Fatal().Err(err).Str("output", outputPath).Msg("cannot write report")
	}
}
