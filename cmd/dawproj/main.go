package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dawtools/dawproject/engine"
	"github.com/dawtools/dawproject/version"
)

// summary is the YAML shape of the -y output: the project header plus
// per-track counts, gathered with the streaming reader so arbitrarily large
// files stay cheap to inspect.
type summary struct {
	Title    string         `yaml:"title,omitempty"`
	Artist   string         `yaml:"artist,omitempty"`
	Album    string         `yaml:"album,omitempty"`
	Genre    string         `yaml:"genre,omitempty"`
	Key      string         `yaml:"key,omitempty"`
	Tempo    float64        `yaml:"tempo"`
	TimeSig  string         `yaml:"timeSignature"`
	Tracks   []trackSummary `yaml:"tracks"`
	Warnings int            `yaml:"warnings,omitempty"`
}

type trackSummary struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Type    string `yaml:"type"`
	Clips   int    `yaml:"clips"`
	Devices int    `yaml:"devices"`
}

func main() {
	quiet := flag.Bool("q", false, "Print nothing; exit status 0 means every input file is valid.")
	yamlOut := flag.Bool("y", false, "Print a YAML summary of each file instead of validating.")
	outPath := flag.String("o", "", "Load each file in DOM mode and save it to this path, normalizing the document.")
	strict := flag.Bool("strict", false, "Treat dangling references as errors instead of warnings.")
	drop := flag.Bool("drop", false, "When resaving, drop archive entries the project no longer references.")
	cfgPath := flag.String("cfg", "", "Read engine options from this YAML file.")
	timeout := flag.Duration("timeout", 0, "Abort any streaming pass after this duration, e.g. 30s. 0 means no limit.")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String())
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}

	opts := engine.DefaultOptions()
	if *cfgPath != "" {
		var err error
		opts, err = engine.ReadOptions(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not read options: %v\n", err)
			os.Exit(1)
		}
	}
	if *strict {
		opts.Strict = true
	}
	if *drop {
		opts.Retention = engine.Drop
	}
	e := engine.New(opts)

	process := func(filename string) error {
		ctx := context.Background()
		if *timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, *timeout)
			defer cancel()
		}
		if *yamlOut {
			return printSummary(ctx, e, filename)
		}
		if *outPath != "" {
			project, _, err := e.Load(filename)
			if err != nil {
				return err
			}
			return e.Save(project, *outPath)
		}
		res := e.ValidateFile(filename)
		if *quiet {
			if !res.OK() {
				return fmt.Errorf("%d errors", len(res.Errors()))
			}
			return nil
		}
		report, err := engine.Report(filename, res)
		if err != nil {
			return err
		}
		fmt.Print(report)
		if !res.OK() {
			return fmt.Errorf("%d errors", len(res.Errors()))
		}
		return nil
	}
	retval := 0
	for _, filename := range flag.Args() {
		if err := process(filename); err != nil {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "could not process file %v: %v\n", filename, err)
			}
			retval = 1
		}
	}
	os.Exit(retval)
}

func printSummary(ctx context.Context, e *engine.Engine, filename string) error {
	r, err := e.OpenStreamReader(ctx, filename)
	if err != nil {
		return err
	}
	defer r.Close()
	info := r.ProjectInfo()
	s := summary{
		Title:   info.Title,
		Artist:  info.Artist,
		Album:   info.Album,
		Genre:   info.Genre,
		Key:     info.Key,
		Tempo:   info.Tempo,
		TimeSig: fmt.Sprintf("%d/%d", info.TimeSignature.Numerator, info.TimeSignature.Denominator),
	}
	for r.HasMoreTracks() {
		t, err := r.ReadNextTrack()
		if err != nil {
			return err
		}
		ts := trackSummary{ID: t.ID, Name: t.Name, Type: string(t.Type), Devices: len(t.Devices)}
		for r.HasMoreClips(t.ID) {
			if _, err := r.ReadNextClip(); err != nil {
				return err
			}
			ts.Clips++
		}
		s.Tracks = append(s.Tracks, ts)
	}
	s.Warnings = len(r.Issues().Warnings())
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Project file tool. Validates, summarizes and resaves project containers.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
