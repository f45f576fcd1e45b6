// Package used for reading tree input files and writing result tables.
package prep

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/io/nexus"
	"github.com/evolbioinfo/gotree/tree"
)

var (
	ErrInvalidFile   = errors.New("invalid file")
	ErrInvalidFormat = errors.New("invalid format")
	ErrWritingFile   = errors.New("error writing file")
)

type Format int

const (
	Newick Format = iota
	Nexus
)

var ParseFormat = map[string]Format{
	"newick": Newick,
	"nexus":  Nexus,
}

func (f *Format) Set(s string) error {
	if format, ok := ParseFormat[s]; ok {
		*f = format
		return nil
	}
	return fmt.Errorf("\"%s\" is not a valid tree file format", s)
}

func (f Format) String() string {
	for s, fr := range ParseFormat {
		if fr == f {
			return s
		}
	}
	panic(fmt.Sprintf("format (%d) does not exist", f))
}

// A tree collection together with display names (newick line numbers or
// nexus tree names); the names label distance matrix rows and columns.
type TreeSet struct {
	Trees []*tree.Tree
	Names []string
}

// Reads a file containing exactly one newick tree (a comparison or mapping
// target). Lengths and supports are kept as parsed.
func ReadTreeFile(treeFile string) (*tree.Tree, error) {
	defer quietLogs()()
	treBytes, err := os.ReadFile(treeFile)
	if err != nil {
		return nil, fmt.Errorf("error reading tree file: %w", err)
	}
	treBytes = bytes.TrimSpace(treBytes)
	if bytes.Count(treBytes, []byte{byte('\n')}) != 0 || len(treBytes) == 0 {
		return nil, fmt.Errorf("%w, there should only be exactly one newick tree in tree file %s",
			ErrInvalidFile, treeFile)
	}
	tre, err := newick.NewParser(bytes.NewReader(treBytes)).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w, error parsing tree newick string from %s: %s",
			ErrInvalidFormat, treeFile, err.Error())
	}
	return tre, nil
}

// Reads and validates a tree collection file (newick, one tree per line, or
// nexus). At least one tree is required.
func ReadTreesFile(treesFile string, format Format) (*TreeSet, error) {
	defer quietLogs()()
	file, err := os.Open(treesFile)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", treesFile, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			panic(fmt.Sprintf("could not close file %s, %s", treesFile, err))
		}
	}()
	treeList := make([]*tree.Tree, 0)
	treeNames := make([]string, 0)
	switch format {
	case Newick:
		scanner := bufio.NewScanner(file)
		for i := 0; scanner.Scan(); i++ {
			line := bytes.TrimSpace(scanner.Bytes())
			if line != nil {
				tre, err := newick.NewParser(bytes.NewReader(line)).Parse()
				if err != nil {
					return nil, fmt.Errorf("%w, error reading tree on line %d in %s: %s",
						ErrInvalidFormat, i, treesFile, err.Error())
				}
				treeList = append(treeList, tre)
				treeNames = append(treeNames, strconv.Itoa(len(treeList)))
			}
		}
	case Nexus:
		nex, err := nexus.NewParser(file).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w, error reading nexus file %s: %s",
				ErrInvalidFormat, treesFile, err.Error())
		}
		nex.IterateTrees(func(s string, t *tree.Tree) {
			treeList = append(treeList, t)
			treeNames = append(treeNames, s)
		})
	default:
		return nil, fmt.Errorf("%w, not a valid file format", ErrInvalidFile)
	}
	if len(treeList) < 1 {
		return nil, fmt.Errorf("%w, empty tree file %s", ErrInvalidFile, treesFile)
	}
	return &TreeSet{Trees: treeList, Names: treeNames}, nil
}

// gotree's parsers can be noisy and lead to thousands of log messages;
// silence the default logger for the duration of a parse.
func quietLogs() func() {
	flags := log.Flags()
	lout := log.Writer()
	log.SetOutput(io.Discard)
	return func() {
		log.SetOutput(lout)
		log.SetFlags(flags)
	}
}

// Write a distance matrix as csv to writer, with a leading header row and a
// name column so rows and columns stay identifiable.
func WriteDistMatrixCSV(matrix [][]float64, names []string, w io.Writer) (err error) {
	if len(matrix) != len(names) {
		panic(fmt.Sprintf("there should be a name for every matrix row, %d rows %d names", len(matrix), len(names)))
	}
	data := make([][]string, len(matrix)+1)
	data[0] = append([]string{"tree"}, names...)
	for i, row := range matrix {
		data[i+1] = []string{names[i]}
		for _, d := range row {
			data[i+1] = append(data[i+1], strconv.FormatFloat(d, 'f', -1, 64))
		}
	}
	writer := csv.NewWriter(w)
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output csv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}
