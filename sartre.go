/*
SARTRE (Splits And quaRtets for TRee Evaluation) computes distances between
phylogenetic trees, majority-rule consensus trees, and per-branch
support/length/height statistics, from exact bipartition and quartet
decompositions of tree topologies.

usage: sartre [ -m <method> | -r | -norm <mode> | -c <freq> | -mode <mode> | -uncond | -tol <tol> | -f <format> | -n <int> | -h | -v ] <command> <args>

commands:

	dist		computes the distance between two trees
	matrix		computes the pairwise distance matrix of a tree collection
	consensus	builds the majority-rule consensus tree of a collection
	map		maps support and length/height statistics onto a target tree

positional arguments:

	dist <tree_a> <tree_b>
	matrix <trees>
	consensus <trees>
	map <target> <trees>

flags:

	-m method
	  	distance method [ rf | rfi | qj | qc ] (default "rf")
	-r	normalize distances
	-norm mode
	  	rfi normalization mode [ sum | min | max | avg ] (default "sum")
	-c float
	  	minimum clade frequency for the consensus tree
	-mode mode
	  	feature mapping mode [ unrooted | rooted ] (default "unrooted")
	-uncond
	  	average tip lengths over all trees instead of matching ones
	-tol float
	  	absolute tolerance for the ultrametricity check
	-f format
	  	tree collection file format [ newick | nexus ] (default "newick")
	-n int
	  	number of parallel processes
	-h	prints this message and exits
	-v	prints version number and exits

examples:

	  distance matrix example:
		sartre -m rfi -r matrix trees.nwk > matrix.csv 2> log.txt

	  consensus example:
		sartre -c 0.5 consensus trees.nwk > consensus.nwk 2> log.txt
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/jsdoublel/sartre/internal/consensus"
	"github.com/jsdoublel/sartre/internal/dist"
	"github.com/jsdoublel/sartre/internal/mapper"
	pr "github.com/jsdoublel/sartre/internal/prep"
)

const (
	Version    = "v0.1.0"
	ErrMessage = "SARTRE incountered an error ::"

	Dist Command = iota
	Matrix
	Consensus
	Map
)

type Command int

var parseCommand = map[string]Command{
	"dist":      Dist,
	"matrix":    Matrix,
	"consensus": Consensus,
	"map":       Map,
}

type MapMode int

const (
	UnrootedMode MapMode = iota
	RootedMode
)

var parseMapMode = map[string]MapMode{
	"unrooted": UnrootedMode,
	"rooted":   RootedMode,
}

func (m *MapMode) Set(s string) error {
	if mode, ok := parseMapMode[s]; ok {
		*m = mode
		return nil
	}
	return fmt.Errorf("\"%s\" is not a valid feature mapping mode", s)
}

func (m MapMode) String() string {
	for s, mode := range parseMapMode {
		if mode == m {
			return s
		}
	}
	panic(fmt.Sprintf("feature mapping mode (%d) does not exist", int(m)))
}

type args struct {
	command   Command    // dist, matrix, consensus, or map
	method    dist.Method
	normalize bool
	norm      dist.NormMode
	minFreq   float64
	mapMode   MapMode
	uncond    bool
	tol       float64
	format    pr.Format // tree collection file format
	nprocs    int       // number of parallel processes
	files     []string  // positional file arguments
}

func setNProcs(nprocs int) int {
	maxProcs := runtime.GOMAXPROCS(0)
	switch {
	case nprocs > maxProcs:
		log.Printf("%d is greater than available processes (%d); limit set to %d\n", nprocs, maxProcs, maxProcs)
		return maxProcs
	case nprocs <= 0:
		log.Printf("number of processes not set; defaulting to %d processes\n", maxProcs)
		return maxProcs
	default:
		return nprocs
	}
}

var nPositional = map[Command]int{
	Dist:      2,
	Matrix:    1,
	Consensus: 1,
	Map:       2,
}

func parseArgs() args {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"usage: sartre [ <flags> ] <command> <args>\n",
			"\n",
			"commands:\n\n",
			"  dist\t\tcomputes the distance between two trees\n",
			"  matrix\tcomputes the pairwise distance matrix of a tree collection\n",
			"  consensus\tbuilds the majority-rule consensus tree of a collection\n",
			"  map\t\tmaps support and length/height statistics onto a target tree\n",
			"\n",
			"positional arguments:\n\n",
			"  dist <tree_a> <tree_b>\n",
			"  matrix <trees>\n",
			"  consensus <trees>\n",
			"  map <target> <trees>\n",
			"\n",
			"flags:\n\n",
		)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr,
			"\n",
			"examples:\n\n",
			"  distance matrix example:\n",
			"\tsartre -m rfi -r matrix trees.nwk > matrix.csv 2> log.txt\n\n",
			"  consensus example:\n",
			"\tsartre -c 0.5 consensus trees.nwk > consensus.nwk 2> log.txt\n",
		)
	}
	method := dist.RobinsonFoulds
	flag.Var(&method, "m", "distance `method` [ rf | rfi | qj | qc ] (default \"rf\")")
	normalize := flag.Bool("r", false, "normalize distances")
	norm := dist.NormSum
	flag.Var(&norm, "norm", "rfi normalization `mode` [ sum | min | max | avg ] (default \"sum\")")
	minFreq := flag.Float64("c", 0.5, "minimum clade frequency for the consensus tree")
	mapMode := UnrootedMode
	flag.Var(&mapMode, "mode", "feature mapping `mode` [ unrooted | rooted ] (default \"unrooted\")")
	uncond := flag.Bool("uncond", false, "average tip lengths over all trees instead of matching ones")
	tol := flag.Float64("tol", mapper.DefaultTolerance, "absolute tolerance for the ultrametricity check")
	format := pr.Newick
	flag.Var(&format, "f", "tree collection file `format` [ newick | nexus ] (default \"newick\")")
	nprocs := flag.Int("n", 0, "number of parallel processes")
	help := flag.Bool("h", false, "prints this message and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("SARTRE version %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		parserError("a command is required: one of \"dist\", \"matrix\", \"consensus\", or \"map\"")
	}
	cmd, ok := parseCommand[flag.Arg(0)]
	if !ok {
		parserError(fmt.Sprintf("\"%s\" is not a valid command: one of \"dist\", \"matrix\", \"consensus\", or \"map\" required", flag.Arg(0)))
	}
	if flag.NArg() != nPositional[cmd]+1 {
		parserError(fmt.Sprintf("command \"%s\" requires %d file argument(s)", flag.Arg(0), nPositional[cmd]))
	}
	if *minFreq < 0 || *minFreq > 1 {
		parserError(fmt.Sprintf("minimum clade frequency %f is not in [0, 1]", *minFreq))
	}
	return args{
		command:   cmd,
		method:    method,
		normalize: *normalize,
		norm:      norm,
		minFreq:   *minFreq,
		mapMode:   mapMode,
		uncond:    *uncond,
		tol:       *tol,
		format:    format,
		nprocs:    setNProcs(*nprocs),
		files:     flag.Args()[1:],
	}
}

// prints message, usage, and exits (status code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message)
	flag.Usage()
	os.Exit(1)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("SARTRE version %s", Version)
	args := parseArgs()
	switch args.command {
	case Dist:
		t1, err := pr.ReadTreeFile(args.files[0])
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		t2, err := pr.ReadTreeFile(args.files[1])
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		d, err := dist.CompareTrees(t1, t2, args.method, dist.Options{Normalize: args.normalize, Norm: args.norm})
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		fmt.Println(d)
	case Matrix:
		trees, err := pr.ReadTreesFile(args.files[0], args.format)
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		log.Printf("computing %s distance matrix for %d trees...", args.method, len(trees.Trees))
		matrix, err := dist.Matrix(trees.Trees, args.method, dist.Options{Normalize: args.normalize, Norm: args.norm}, args.nprocs)
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		if err := pr.WriteDistMatrixCSV(matrix, trees.Names, os.Stdout); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
	case Consensus:
		trees, err := pr.ReadTreesFile(args.files[0], args.format)
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		log.Printf("building consensus of %d trees at minimum frequency %g...", len(trees.Trees), args.minFreq)
		cons, err := consensus.Consensus(trees.Trees, args.minFreq, args.nprocs)
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		fmt.Println(cons.Newick())
	case Map:
		target, err := pr.ReadTreeFile(args.files[0])
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		trees, err := pr.ReadTreesFile(args.files[1], args.format)
		if err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
		switch args.mapMode {
		case UnrootedMode:
			mapped, err := mapper.Unrooted(target, trees.Trees, !args.uncond)
			if err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
			fmt.Println(mapped.Newick())
		case RootedMode:
			mapped, _, err := mapper.Rooted(target, trees.Trees, args.tol)
			if err != nil {
				log.Fatalf("%s %s\n", ErrMessage, err)
			}
			fmt.Println(mapped.Newick())
		default:
			panic(fmt.Sprintf("invalid feature mapping mode (%d)", args.mapMode))
		}
	default:
		panic(fmt.Sprintf("invalid command (%d)", args.command))
	}
}
