// Command tilegen authors and inspects infill tile directories.
//
//	tilegen write --tiles_path DIR --pattern NAME --z Z [--input FILE]
//	tilegen lines --tiles_path DIR --pattern NAME --heights 0,400 --spacing 2000
//	tilegen list  --tiles_path DIR
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/layered-infill/geom"
	"github.com/signalsfoundry/layered-infill/tiles"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage: tilegen <write|lines|list> [flags]")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, afero.NewOsFs()); err != nil {
		fmt.Fprintf(os.Stderr, "tilegen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer, fs afero.Fs) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "write":
		return runWrite(args[1:], stdin, stdout, fs)
	case "lines":
		return runLines(args[1:], stdout, fs)
	case "list":
		return runList(args[1:], stdout, fs)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

type common struct {
	root      string
	pattern   string
	size      int64
	overwrite bool
}

func commonFlags(fs *pflag.FlagSet, c *common) {
	fs.StringVar(&c.root, "tiles_path", "tiles", "tiles root directory")
	fs.StringVar(&c.pattern, "pattern", "", "pattern name")
	fs.Int64Var(&c.size, "tile-size", tiles.DefaultTileSize, "side length of the canonical tile square")
	fs.BoolVar(&c.overwrite, "overwrite", false, "replace existing tile files")
}

// runWrite stores fill records read from --input (default stdin) as one tile.
// The canonical square is prepended; the input holds fill records only.
func runWrite(args []string, stdin io.Reader, stdout io.Writer, fs afero.Fs) error {
	var c common
	flags := pflag.NewFlagSet("write", pflag.ContinueOnError)
	commonFlags(flags, &c)
	z := flags.Int64("z", 0, "layer height of the tile")
	input := flags.String("input", "-", "file with one WKT record per line; - reads stdin")
	if err := flags.Parse(args); err != nil {
		return err
	}

	in := stdin
	if *input != "-" {
		f, err := fs.Open(*input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	records, err := readRecords(in)
	if err != nil {
		return err
	}
	path, err := tiles.WriteTile(fs, c.root, c.pattern, *z, c.size, records, c.overwrite)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%d records)\n", path, len(records))
	return nil
}

// runLines writes a parallel-line pattern, alternating horizontal and
// vertical lines between consecutive heights.
func runLines(args []string, stdout io.Writer, fs afero.Fs) error {
	var c common
	flags := pflag.NewFlagSet("lines", pflag.ContinueOnError)
	commonFlags(flags, &c)
	heights := flags.Int64Slice("heights", []int64{0}, "tile heights to generate")
	spacing := flags.Int64("spacing", 2000, "distance between lines")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *spacing <= 0 || *spacing > c.size {
		return fmt.Errorf("spacing must be within (0, %d], got %d", c.size, *spacing)
	}

	for i, z := range *heights {
		records := lineRecords(c.size, *spacing, i%2 == 1)
		path, err := tiles.WriteTile(fs, c.root, c.pattern, z, c.size, records, c.overwrite)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s (%d lines)\n", path, len(records))
	}
	return nil
}

func lineRecords(size, spacing int64, vertical bool) []string {
	var out []string
	for off := spacing / 2; off < size; off += spacing {
		ls := orb.LineString{{0, float64(off)}, {float64(size), float64(off)}}
		if vertical {
			ls = orb.LineString{{float64(off), 0}, {float64(off), float64(size)}}
		}
		out = append(out, geom.Marshal(ls))
	}
	return out
}

// runList loads a tiles root the way the server does and prints its catalogue.
func runList(args []string, stdout io.Writer, fs afero.Fs) error {
	var c common
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	commonFlags(flags, &c)
	if err := flags.Parse(args); err != nil {
		return err
	}

	repo := tiles.NewDirRepository(fs, c.root, tiles.WithTileSize(c.size))
	reg, err := tiles.LoadRegistry(context.Background(), repo, tiles.LoadOptions{Concurrency: 4})
	if err != nil {
		return err
	}
	for _, name := range reg.Names() {
		p, err := reg.Pattern(name)
		if err != nil {
			return err
		}
		hs := make([]string, 0, p.Len())
		for _, h := range p.Heights() {
			hs = append(hs, fmt.Sprint(h))
		}
		fmt.Fprintf(stdout, "%s\t%s\n", name, strings.Join(hs, ","))
	}
	return nil
}

func readRecords(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}
