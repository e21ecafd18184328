// Command darkwiki is the command-line front end for the darkwiki
// engine: the content-addressed object store, the three-way merge
// engine, and the peer sync protocol. The front end itself sits outside
// the engine's specification (§1) -- it only wires flag.Arg(0) dispatch
// onto the internal packages, the same shape the teacher's cmd/kit used.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/systemshift/darkwiki/internal/config"
	"github.com/systemshift/darkwiki/internal/difference"
	"github.com/systemshift/darkwiki/internal/dwcrypto"
	"github.com/systemshift/darkwiki/internal/mergeengine"
	"github.com/systemshift/darkwiki/internal/objstore"
	"github.com/systemshift/darkwiki/internal/p2p"
)

const defaultBranch = "master"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: darkwiki <command> [arguments]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, line := range []string{
		"init", "add-object <file>", "add <path>", "rm <path>", "list",
		"update-index [--clear | --cacheinfo MODE IDENT PATH]",
		"read-index", "write-tree", "show <ident>", "type <ident>",
		"commit [-a]", "log", "diff [--cached] [<commit>]",
		"branch [<name> [<commit>]]", "random-secret",
		"to-public <secret-hex>", "sync <port> <secret-hex>",
		"authorize <public-hex>", "merge <branch>",
	} {
		fmt.Fprintf(os.Stderr, "  %s\n", line)
	}
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	fatalIf(err, "getwd")

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "init":
		cmdInit(cwd)
	case "add-object":
		cmdAddObject(cwd, args)
	case "add":
		cmdAdd(cwd, args)
	case "rm":
		cmdRemove(cwd, args)
	case "list":
		cmdList(cwd)
	case "update-index":
		cmdUpdateIndex(cwd, args)
	case "read-index":
		cmdReadIndex(cwd)
	case "write-tree":
		cmdWriteTree(cwd)
	case "show":
		cmdShow(cwd, args)
	case "type":
		cmdType(cwd, args)
	case "commit":
		cmdCommit(cwd, args)
	case "log":
		cmdLog(cwd)
	case "diff":
		cmdDiff(cwd, args)
	case "branch":
		cmdBranch(cwd, args)
	case "random-secret":
		cmdRandomSecret()
	case "to-public":
		cmdToPublic(args)
	case "sync":
		cmdSync(cwd, args)
	case "authorize":
		cmdAuthorize(cwd, args)
	case "merge":
		cmdMerge(cwd, args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "darkwiki: unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func fatalIf(err error, context string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "darkwiki: %s: %v\n", context, err)
		os.Exit(1)
	}
}

func openRepo(root string) *objstore.Repository {
	if !objstore.IsRepository(root) {
		fmt.Fprintln(os.Stderr, "darkwiki: not a darkwiki repository")
		os.Exit(1)
	}
	return objstore.Open(root)
}

// resolveIdent accepts either a full 64-character hex identifier or a
// fuzzy hex prefix, matching the ident-or-prefix forms every show/type/
// diff/branch argument accepts.
func resolveIdent(repo *objstore.Repository, s string) objstore.Ident {
	if len(s) == objstore.IdentSize*2 {
		if id, err := objstore.ParseIdent(s); err == nil {
			return id
		}
	}
	id, err := repo.Store.FuzzyMatch(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "darkwiki: %s: ident not found\n", s)
		os.Exit(1)
	}
	return id
}

func cmdInit(root string) {
	repo := objstore.Open(root)
	fatalIf(repo.Init(defaultBranch), "init")
	fmt.Printf("Initialized empty darkwiki repository in %s\n", repo.Store.DotDir())
}

func cmdAddObject(root string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: add-object requires exactly one file")
		os.Exit(1)
	}
	repo := openRepo(root)
	data, err := os.ReadFile(args[0])
	fatalIf(err, "add-object")
	id, err := repo.AddObject(data)
	fatalIf(err, "add-object")
	fmt.Println(id.Hex())
}

func cmdAdd(root string, paths []string) {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "darkwiki: add requires at least one path")
		os.Exit(1)
	}
	repo := openRepo(root)
	for _, path := range paths {
		if _, err := repo.Add(path); err != nil {
			fatalIf(err, "add "+path)
		}
	}
}

func cmdRemove(root string, paths []string) {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "darkwiki: rm requires at least one path")
		os.Exit(1)
	}
	repo := openRepo(root)
	for _, path := range paths {
		fatalIf(repo.Remove(path), "rm "+path)
	}
}

func cmdList(root string) {
	repo := openRepo(root)
	idents, err := repo.Store.List()
	fatalIf(err, "list")
	for _, id := range idents {
		fmt.Println(id.Hex())
	}
}

func cmdUpdateIndex(root string, args []string) {
	repo := openRepo(root)
	fs := flag.NewFlagSet("update-index", flag.ExitOnError)
	clear := fs.Bool("clear", false, "clear the index")
	cacheinfo := fs.Bool("cacheinfo", false, "set one index entry by mode, ident, path")
	fatalIf(fs.Parse(args), "update-index")

	if *clear {
		fatalIf(repo.Store.WriteIndex(nil), "update-index --clear")
		return
	}
	if *cacheinfo {
		rest := fs.Args()
		if len(rest) != 3 {
			fmt.Fprintln(os.Stderr, "darkwiki: --cacheinfo requires MODE IDENT PATH")
			os.Exit(1)
		}
		id, err := objstore.ParseIdent(rest[1])
		fatalIf(err, "update-index --cacheinfo")
		entries, err := repo.Store.ReadIndex()
		fatalIf(err, "update-index --cacheinfo")
		entries = objstore.UpsertIndexEntry(entries, objstore.IndexEntry{Mode: rest[0], Ident: id, Path: rest[2]})
		fatalIf(repo.Store.WriteIndex(entries), "update-index --cacheinfo")
		return
	}
	fmt.Fprintln(os.Stderr, "darkwiki: update-index requires --clear or --cacheinfo")
	os.Exit(1)
}

func cmdReadIndex(root string) {
	repo := openRepo(root)
	entries, err := repo.Store.ReadIndex()
	fatalIf(err, "read-index")
	for _, e := range entries {
		fmt.Printf("%s %s %s\n", e.Mode, e.Ident.Hex(), e.Path)
	}
}

func cmdWriteTree(root string) {
	repo := openRepo(root)
	id, err := repo.WriteTree()
	fatalIf(err, "write-tree")
	fmt.Println(id.Hex())
}

func cmdShow(root string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: show requires exactly one ident")
		os.Exit(1)
	}
	repo := openRepo(root)
	id := resolveIdent(repo, args[0])
	kind, body, err := repo.Store.Get(id)
	fatalIf(err, "show")

	switch kind {
	case objstore.KindBlob:
		os.Stdout.Write(body)
	case objstore.KindTree:
		lines, err := objstore.ParseTreeBody(body)
		fatalIf(err, "show")
		for _, l := range lines {
			fmt.Printf("%s %s %s %s\n", l.Mode, l.Kind, l.Ident.Hex(), l.Name)
		}
	case objstore.KindCommit:
		c, err := objstore.UnmarshalCommit(body)
		fatalIf(err, "show")
		fmt.Printf("tree %s\n", c.Tree.Hex())
		if c.HasPrevious() {
			fmt.Printf("previous %s\n", c.PreviousCommit)
		}
		sign := "+"
		offset := c.UTCOffset
		if offset < 0 {
			sign = "-"
			offset = -offset
		}
		fmt.Printf("timestamp %d %s%02d%02d\n", c.Timestamp, sign, offset/3600, (offset%3600)/60)
	}
}

func cmdType(root string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: type requires exactly one ident")
		os.Exit(1)
	}
	repo := openRepo(root)
	id := resolveIdent(repo, args[0])
	kind, _, err := repo.Store.Get(id)
	fatalIf(err, "type")
	fmt.Println(kind)
}

func cmdCommit(root string, args []string) {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	all := fs.Bool("a", false, "stage every indexed file's current contents before committing")
	fatalIf(fs.Parse(args), "commit")

	repo := openRepo(root)
	if *all {
		entries, err := repo.Store.ReadIndex()
		fatalIf(err, "commit -a")
		for _, e := range entries {
			if _, err := repo.Add(e.Path); err != nil {
				fatalIf(err, "commit -a: restage "+e.Path)
			}
		}
	}

	id, err := repo.Commit()
	fatalIf(err, "commit")
	fmt.Println(id.Hex())
}

func cmdLog(root string) {
	repo := openRepo(root)
	commits, err := repo.Log()
	fatalIf(err, "log")
	if len(commits) == 0 {
		fmt.Println("No commits yet")
		return
	}

	tip, err := repo.LastCommit()
	fatalIf(err, "log")
	chain, err := repo.Store.CommitChain(tip)
	fatalIf(err, "log")

	for i, c := range commits {
		fmt.Printf("commit %s\n", chain[i])
		fmt.Printf("tree    %s\n", c.Tree.Hex())
		fmt.Printf("date    %s\n", humanize.Time(time.Unix(c.Timestamp, 0)))
		fmt.Println()
	}
}

func cmdDiff(root string, args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	cached := fs.Bool("cached", false, "diff the staged index instead of the working tree")
	fatalIf(fs.Parse(args), "diff")
	rest := fs.Args()
	if len(rest) > 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: diff takes at most one commit argument")
		os.Exit(1)
	}

	repo := openRepo(root)

	var commitIdent objstore.Ident
	if len(rest) == 1 {
		commitIdent = resolveIdent(repo, rest[0])
	}

	var a, b difference.Side
	if *cached {
		side, err := difference.NewCommitSide(repo, commitIdent)
		fatalIf(err, "diff --cached")
		a = side
		b = difference.NewIndexSide(repo.Store)
	} else if len(rest) == 1 {
		side, err := difference.NewCommitSide(repo, commitIdent)
		fatalIf(err, "diff")
		a = side
		b = difference.NewDiskSide(repo)
	} else {
		a = difference.NewIndexSide(repo.Store)
		b = difference.NewDiskSide(repo)
	}

	results, err := difference.NewEngine(a, b).Results()
	fatalIf(err, "diff")
	if len(results) == 0 {
		fmt.Println("No differences")
		return
	}
	for _, fd := range results {
		fmt.Printf("diff --darkwiki a/%s b/%s\n", fd.Path, fd.Path)
		for _, run := range fd.Runs {
			var prefix string
			switch {
			case run.Sign < 0:
				prefix = "-"
			case run.Sign > 0:
				prefix = "+"
			default:
				prefix = " "
			}
			for _, line := range strings.Split(run.Text, "\n") {
				fmt.Printf("%s%s\n", prefix, line)
			}
		}
	}
}

func cmdBranch(root string, args []string) {
	repo := openRepo(root)

	if len(args) == 0 {
		branches, err := repo.Store.ListBranches()
		fatalIf(err, "branch")
		current, _ := repo.Store.CurrentBranch()
		for _, b := range branches {
			if b == current {
				fmt.Printf("* %s\n", b)
			} else {
				fmt.Printf("  %s\n", b)
			}
		}
		return
	}

	name := args[0]
	if len(args) == 1 {
		fatalIf(repo.CheckoutBranch(name, nil), "branch "+name)
		fmt.Printf("Switched to branch '%s'\n", name)
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "darkwiki: branch takes at most a name and a commit")
		os.Exit(1)
	}
	id := resolveIdent(repo, args[1])
	fatalIf(repo.CheckoutBranch(name, &id), "branch "+name)
	fmt.Printf("Switched to branch '%s' at %s\n", name, id.Hex())
}

func cmdRandomSecret() {
	secret, err := dwcrypto.RandomSecret()
	fatalIf(err, "random-secret")
	fmt.Println(hex.EncodeToString(secret[:]))
}

func cmdToPublic(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: to-public requires exactly one secret-hex argument")
		os.Exit(1)
	}
	secret, err := parseSecretHex(args[0])
	fatalIf(err, "to-public")
	public, err := dwcrypto.SecretToPublic(secret)
	fatalIf(err, "to-public")
	fmt.Println(hex.EncodeToString(public[:]))
}

func cmdAuthorize(root string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: authorize requires exactly one public-hex argument")
		os.Exit(1)
	}
	repo := openRepo(root)
	raw, err := hex.DecodeString(args[0])
	fatalIf(err, "authorize")
	if len(raw) != dwcrypto.KeySize {
		fmt.Fprintln(os.Stderr, "darkwiki: authorize: malformed public key")
		os.Exit(1)
	}
	var public dwcrypto.PublicKey
	copy(public[:], raw)
	fatalIf(repo.Store.AddAuthorizedKey(public), "authorize")
	fmt.Printf("Authorized %x\n", public[:])
}

func cmdMerge(root string, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "darkwiki: merge requires exactly one branch name")
		os.Exit(1)
	}
	repo := openRepo(root)
	current, err := repo.Store.CurrentBranch()
	fatalIf(err, "merge")

	id, err := mergeengine.New(repo).Merge3Way(current, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "darkwiki: merge: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Merged '%s' into '%s' at %s\n", args[0], current, id.Hex())
}

func cmdSync(root string, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "darkwiki: sync requires <port> <secret-hex>")
		os.Exit(1)
	}
	repo := openRepo(root)

	port, err := strconv.Atoi(args[0])
	fatalIf(err, "sync")
	secret, err := parseSecretHex(args[1])
	fatalIf(err, "sync")

	cfg, err := config.Load(repo.Store.DotDir())
	fatalIf(err, "sync")

	logger, err := newLogger(cfg.LogLevel)
	fatalIf(err, "sync")
	defer logger.Sync()

	node, err := p2p.NewNode(repo, secret, logger)
	fatalIf(err, "sync")

	listenAddr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.Info("darkwiki: listening", zap.String("addr", listenAddr), zap.Uint32("node", node.ID()))

	if err := node.Bootstrap(cfg.SeedAddress, listenAddr); err != nil {
		logger.Warn("darkwiki: bootstrap failed", zap.Error(err))
	}

	fatalIf(node.ListenAndServe(listenAddr), "sync")
}

func parseSecretHex(s string) (dwcrypto.SecretKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return dwcrypto.SecretKey{}, fmt.Errorf("parse secret: %w", err)
	}
	if len(raw) != dwcrypto.KeySize {
		return dwcrypto.SecretKey{}, fmt.Errorf("parse secret: want %d bytes, got %d", dwcrypto.KeySize, len(raw))
	}
	var secret dwcrypto.SecretKey
	copy(secret[:], raw)
	return secret, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	return cfg.Build()
}
