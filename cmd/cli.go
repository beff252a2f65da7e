package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fzft/go-probed-set/db"
	"github.com/fzft/go-probed-set/deps/linenoise"
	"github.com/fzft/go-probed-set/log"
	"go.uber.org/zap"
)

const (
	historySize  = 1000
	promptSuffix = " % "
	argPrompt    = "> "
)

var (
	errNoObject = errors.New("no object")
	errExit     = errors.New("exit")
)

type SetCliCfg struct {
	MaxAllocations int
	MaxMemory      int64
	HistoryFile    string
}

// SetCli applies scripted commands to a HashSet. Most commands carry the
// value the script expects; the cli prints "Okay" when the table agrees and
// a description of the mismatch when it does not.
type SetCli[K db.Key] struct {
	config   *SetCliCfg
	parseKey func(string) (K, error)
	tracker  *db.Tracker
	object   *db.HashSet[K]
	procs    map[string]func() error

	out     io.Writer
	tokens  *tokenizer
	count   int
	history [historySize]string
}

func NewSetCli[K db.Key](config *SetCliCfg, parseKey func(string) (K, error)) *SetCli[K] {
	opts := []db.TrackerOption{
		db.WithMaxMemory(config.MaxMemory),
		db.WithTrackerLogger(log.Logger.Named("tracker")),
	}
	if config.MaxAllocations > 0 {
		opts = append(opts, db.WithMaxAllocations(config.MaxAllocations))
	}

	cli := &SetCli[K]{
		config:   config,
		parseKey: parseKey,
		tracker:  db.NewTracker(opts...),
	}
	cli.procs = map[string]func() error{
		"new":           cli.newCommand,
		"new:":          cli.newPowerCommand,
		"size":          cli.sizeCommand,
		"capacity":      cli.capacityCommand,
		"load_factor":   cli.loadFactorCommand,
		"empty":         cli.emptyCommand,
		"member":        cli.memberCommand,
		"bin":           cli.binCommand,
		"insert":        cli.insertCommand,
		"insert!":       cli.insertOverflowCommand,
		"erase":         cli.eraseCommand,
		"clear":         cli.clearCommand,
		"cout":          cli.coutCommand,
		"delete":        cli.deleteCommand,
		"summary":       cli.summaryCommand,
		"details":       cli.detailsCommand,
		"memory":        cli.memoryCommand,
		"memory_store":  cli.memoryStoreCommand,
		"memory_change": cli.memoryChangeCommand,
		"help":          cli.helpCommand,
		"exit":          cli.exitCommand,
	}
	return cli
}

func parseDouble(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Run reads commands from in until it is exhausted or an exit command.
func (cli *SetCli[K]) Run(in io.Reader, out io.Writer) error {
	return cli.run(newReaderSource(in), out, false)
}

// RunInteractive reads commands from the terminal with line editing, keeping
// history in the configured history file.
func (cli *SetCli[K]) RunInteractive(out io.Writer) error {
	ln := linenoise.New()
	defer ln.Close()

	if file := cli.config.HistoryFile; file != "" {
		if err := ln.HistoryLoad(file); err != nil && !os.IsNotExist(err) {
			log.Logger.Warn("failed to load history", zap.String("file", file), zap.Error(err))
		}
		defer func() {
			if err := ln.HistorySave(file); err != nil {
				log.Logger.Warn("failed to save history", zap.String("file", file), zap.Error(err))
			}
		}()
	}
	return cli.run(&linerSource{ln: ln}, out, true)
}

func (cli *SetCli[K]) run(src lineSource, out io.Writer, interactive bool) error {
	cli.out = out
	cli.tokens = newTokenizer(src)
	cli.tracker.StopRecording()

	for !cli.tokens.done() {
		cli.count++
		prompt := fmt.Sprintf("%d%s", cli.count, promptSuffix)
		if !interactive {
			fmt.Fprint(out, prompt)
		}

		command, err := cli.tokens.next(prompt)
		if err == io.EOF {
			fmt.Fprintln(out, "Exiting...")
			return nil
		}
		if err != nil {
			return err
		}

		if strings.HasPrefix(command, "//") {
			fmt.Fprintln(out, command+cli.tokens.restOfLine())
			continue
		}

		command, ok := cli.recall(command)
		if !ok {
			fmt.Fprintln(out, "Event not found")
			continue
		}
		if cli.count < historySize {
			cli.history[cli.count] = command
		}

		// Only allocations made by a command are recorded.
		cli.tracker.StartRecording()
		err = cli.dispatch(command)
		cli.tracker.StopRecording()
		if errors.Is(err, errExit) {
			return nil
		}
	}
	return nil
}

// recall resolves "!!" and "!n" against the history of the first
// historySize commands.
func (cli *SetCli[K]) recall(command string) (string, bool) {
	switch {
	case command == "!!":
		if cli.count == 1 || cli.count-1 >= historySize {
			return "", false
		}
		// A comment leaves its history entry empty, and recalling it runs
		// the empty command.
		return cli.history[cli.count-1], true
	case command[0] == '!':
		n, err := strconv.Atoi(command[1:])
		if err != nil || n <= 0 || n >= cli.count || n >= historySize {
			return "", false
		}
		return cli.history[n], true
	}
	return command, true
}

func (cli *SetCli[K]) dispatch(command string) error {
	proc, ok := cli.procs[command]
	if !ok {
		log.Logger.Warn("unknown command", zap.String("command", command))
		fmt.Fprintf(cli.out, "%s: Command not found.\n", command)
		return nil
	}

	log.Logger.Debug("command", zap.Int("count", cli.count), zap.String("command", command))
	err := proc()
	if err != nil && !errors.Is(err, errExit) {
		fmt.Fprintf(cli.out, "Failed %s: %v\n", command, err)
	}
	return err
}

/*------------------------------------------------------------------------------
 * Argument parsing
 *--------------------------------------------------------------------------- */

func (cli *SetCli[K]) nextWord() (string, error) {
	word, err := cli.tokens.next(argPrompt)
	if err == io.EOF {
		return "", errors.New("missing argument")
	}
	return word, err
}

func (cli *SetCli[K]) nextInt() (int, error) {
	word, err := cli.nextWord()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return 0, errors.Newf("invalid integer %q", word)
	}
	return n, nil
}

func (cli *SetCli[K]) nextFloat() (float64, error) {
	word, err := cli.nextWord()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return 0, errors.Newf("invalid number %q", word)
	}
	return f, nil
}

func (cli *SetCli[K]) nextBool() (bool, error) {
	word, err := cli.nextWord()
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(word)
	if err != nil {
		return false, errors.Newf("invalid boolean %q", word)
	}
	return b, nil
}

func (cli *SetCli[K]) nextKey() (K, error) {
	var zero K
	word, err := cli.nextWord()
	if err != nil {
		return zero, err
	}
	k, err := cli.parseKey(word)
	if err != nil {
		return zero, errors.Newf("invalid key %q", word)
	}
	return k, nil
}

/*------------------------------------------------------------------------------
 * Output
 *--------------------------------------------------------------------------- */

func (cli *SetCli[K]) okay() {
	fmt.Fprintln(cli.out, "Okay")
}

// expect prints Okay when actual matches expected and the mismatch otherwise.
func expect[T comparable](w io.Writer, call string, expected, actual T) {
	if actual == expected {
		fmt.Fprintln(w, "Okay")
		return
	}
	fmt.Fprintf(w, ": Failed %s: expecting the value '%s' but got '%s'\n",
		call, formatValue(expected), formatValue(actual))
}

// formatValue prints booleans as 1 and 0, the way the scripts write them.
func formatValue(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

/*------------------------------------------------------------------------------
 * Commands
 *--------------------------------------------------------------------------- */

func (cli *SetCli[K]) requireObject() error {
	if cli.object == nil {
		return errNoObject
	}
	return nil
}

func (cli *SetCli[K]) newCommand() error {
	return cli.create(db.DefaultPower)
}

func (cli *SetCli[K]) newPowerCommand() error {
	power, err := cli.nextInt()
	if err != nil {
		return err
	}
	return cli.create(power)
}

// create replaces the current object. An object replaced without a delete
// is never freed, and the memory commands report it as a leak.
func (cli *SetCli[K]) create(power int) error {
	s, err := db.New[K](power,
		db.WithAllocator(cli.tracker),
		db.WithLogger(log.Logger.Named("hashset")))
	if err != nil {
		return err
	}
	cli.object = s
	cli.okay()
	return nil
}

func (cli *SetCli[K]) sizeCommand() error {
	expected, err := cli.nextInt()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, "size()", expected, cli.object.Size())
	return nil
}

func (cli *SetCli[K]) capacityCommand() error {
	expected, err := cli.nextInt()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, "capacity()", expected, cli.object.Capacity())
	return nil
}

func (cli *SetCli[K]) loadFactorCommand() error {
	expected, err := cli.nextFloat()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, "load_factor()", expected, cli.object.LoadFactor())
	return nil
}

func (cli *SetCli[K]) emptyCommand() error {
	expected, err := cli.nextBool()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, "empty()", expected, cli.object.Empty())
	return nil
}

func (cli *SetCli[K]) memberCommand() error {
	key, err := cli.nextKey()
	if err != nil {
		return err
	}
	expected, err := cli.nextBool()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, fmt.Sprintf("member(%s)", formatValue(key)), expected, cli.object.Member(key))
	return nil
}

func (cli *SetCli[K]) binCommand() error {
	i, err := cli.nextInt()
	if err != nil {
		return err
	}
	expected, err := cli.nextKey()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	actual, err := cli.object.Bin(i)
	if err != nil {
		return err
	}
	expect(cli.out, fmt.Sprintf("bin(%d)", i), expected, actual)
	return nil
}

func (cli *SetCli[K]) insertCommand() error {
	key, err := cli.nextKey()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	if err := cli.object.Insert(key); err != nil {
		return err
	}
	cli.okay()
	return nil
}

// insertOverflowCommand expects the insert to be refused for lack of room.
func (cli *SetCli[K]) insertOverflowCommand() error {
	key, err := cli.nextKey()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	switch err := cli.object.Insert(key); {
	case err == nil:
		fmt.Fprintf(cli.out, "Failed insert(%s): expecting an overflow but the insert succeeded\n", formatValue(key))
	case errors.Is(err, db.ErrOverflow):
		cli.okay()
	default:
		fmt.Fprintf(cli.out, "Failed insert(%s): expecting an overflow but got: %v\n", formatValue(key), err)
	}
	return nil
}

func (cli *SetCli[K]) eraseCommand() error {
	key, err := cli.nextKey()
	if err != nil {
		return err
	}
	expected, err := cli.nextBool()
	if err != nil {
		return err
	}
	if err := cli.requireObject(); err != nil {
		return err
	}
	expect(cli.out, fmt.Sprintf("erase(%s)", formatValue(key)), expected, cli.object.Erase(key))
	return nil
}

func (cli *SetCli[K]) clearCommand() error {
	if err := cli.requireObject(); err != nil {
		return err
	}
	cli.object.Clear()
	cli.okay()
	return nil
}

func (cli *SetCli[K]) coutCommand() error {
	if err := cli.requireObject(); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, cli.object.String())
	return nil
}

func (cli *SetCli[K]) deleteCommand() error {
	if cli.object != nil {
		err := cli.object.Close()
		cli.object = nil
		if err != nil {
			return err
		}
	}
	cli.okay()
	return nil
}

func (cli *SetCli[K]) summaryCommand() error {
	cli.tracker.Summary(cli.out)
	return nil
}

func (cli *SetCli[K]) detailsCommand() error {
	cli.tracker.Details(cli.out)
	return nil
}

func (cli *SetCli[K]) memoryCommand() error {
	expected, err := cli.nextInt()
	if err != nil {
		return err
	}
	if inUse := cli.tracker.InUse(); inUse != int64(expected) {
		fmt.Fprintf(cli.out, "Failure in memory allocation: expecting %d bytes to be allocated, but %d bytes were allocated\n",
			expected, inUse)
		return nil
	}
	cli.okay()
	return nil
}

func (cli *SetCli[K]) memoryStoreCommand() error {
	cli.tracker.Store()
	cli.okay()
	return nil
}

// memoryChangeCommand is silent when the change matches.
func (cli *SetCli[K]) memoryChangeCommand() error {
	expected, err := cli.nextInt()
	if err != nil {
		return err
	}
	if change := cli.tracker.Change(); change != int64(expected) {
		fmt.Fprintf(cli.out, "WARNING: expecting a change in memory allocation of %d bytes, but the change was %d\n",
			expected, change)
	}
	return nil
}

func (cli *SetCli[K]) helpCommand() error {
	for _, doc := range cliCommandTable {
		fmt.Fprintf(cli.out, "  %-14s %-13s %s\n", doc.name, doc.args, doc.summary)
	}
	return nil
}

func (cli *SetCli[K]) exitCommand() error {
	cli.okay()
	return errExit
}
