package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/nickyhof/MiniDB"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/db"
	"github.com/nickyhof/MiniDB/ps"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22D3EE"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#22D3EE")).Bold(true)
	bannerStyle  = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("#22D3EE")).
			Foreground(lipgloss.Color("#22D3EE")).
			Bold(true).
			Width(39).
			Align(lipgloss.Center)
)

// Version is set at build time via -ldflags
var Version = "dev"

const historyLimit = 1000

// CLI holds the CLI state
type CLI struct {
	instance    *MiniDB.Instance
	engine      *db.Engine
	persistence *ps.Persistence // nil unless the store is a git repository
	identity    core.Identity
	auth        *ps.RemoteAuth
	s3          *ps.S3Config
	autosave    bool
	out         io.Writer
	logger      *slog.Logger
	history     []string
	historyFile string
}

func main() {
	baseDir := flag.String("baseDir", "", "Base directory for the database (memory when empty)")
	gitUrl := flag.String("gitUrl", "", "Git URL to clone the database from")
	gitToken := flag.String("gitToken", os.Getenv("MINIDB_GIT_TOKEN"), "Token for pushing and pulling")
	sqlFile := flag.String("sqlFile", "", "SQL file to execute (non-interactive)")
	userName := flag.String("name", "MiniDB", "User name recorded on saves")
	userEmail := flag.String("email", "cli@minidb.local", "User email recorded on saves")
	order := flag.Int("order", 0, "B-tree order of every index (0 for the default)")
	logLevel := flag.String("logLevel", "warn", "Log level: debug, info, warn, error")
	s3Region := flag.String("s3Region", "", "Region for s3:// locations")
	s3Endpoint := flag.String("s3Endpoint", "", "Custom endpoint for s3:// locations")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Invalid log level %q", *logLevel)))
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	printBanner(os.Stdout)

	var persistence *ps.Persistence
	var err error
	if *baseDir == "" {
		fmt.Println(successStyle.Render("Using memory persistence"))
		persistence, err = ps.NewMemoryPersistence()
	} else {
		fmt.Println(successStyle.Render("Using file persistence: " + *baseDir))
		var gitUrlPtr *string
		if *gitUrl != "" {
			gitUrlPtr = gitUrl
		}
		persistence, err = ps.NewFilePersistence(*baseDir, gitUrlPtr)
	}
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}

	instance, err := MiniDB.Open(context.Background(), persistence, MiniDB.WithOrder(*order), MiniDB.WithLogger(logger))
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Error loading database: %v", err)))
		os.Exit(1)
	}

	cli := newCLI(instance, core.Identity{Name: *userName, Email: *userEmail}, os.Stdout, logger)
	cli.persistence = persistence
	cli.autosave = *baseDir != ""
	cli.historyFile = getHistoryPath()
	if *gitToken != "" {
		cli.auth = &ps.RemoteAuth{Token: *gitToken}
	}
	if *s3Region != "" || *s3Endpoint != "" {
		cli.s3 = &ps.S3Config{Region: *s3Region, Endpoint: *s3Endpoint}
	}

	cli.loadHistory()

	// Execute SQL file if provided
	if *sqlFile != "" {
		if err := cli.importFile(*sqlFile); err != nil {
			cli.printError(fmt.Errorf("importing file: %w", err))
			os.Exit(1)
		}
		return
	}

	cli.run(os.Stdin)
}

func newCLI(instance *MiniDB.Instance, identity core.Identity, out io.Writer, logger *slog.Logger) *CLI {
	return &CLI{
		instance: instance,
		engine:   instance.Engine(),
		identity: identity,
		out:      out,
		logger:   logger,
		history:  make([]string, 0),
	}
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, bannerStyle.Render(fmt.Sprintf("MiniDB v%s\nIn-memory SQL with B-tree indexes", Version)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Type .help for commands, .quit to exit")
	fmt.Fprintln(w)
}

func (cli *CLI) printError(err error) {
	fmt.Fprintln(cli.out, errorStyle.Render(fmt.Sprintf("✗ Error: %v", err)))
}

func (cli *CLI) printSuccess(format string, args ...any) {
	fmt.Fprintln(cli.out, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (cli *CLI) run(in io.Reader) {
	reader := bufio.NewReader(in)
	var multiLineBuffer strings.Builder

	for {
		fmt.Fprint(cli.out, cli.getPrompt(multiLineBuffer.Len() > 0))

		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(cli.out)
			fmt.Fprintln(cli.out, successStyle.Render("Goodbye!"))
			cli.saveHistory()
			return
		}

		input = strings.TrimSuffix(input, "\n")
		input = strings.TrimSuffix(input, "\r")

		if strings.TrimSpace(input) == "" {
			continue
		}

		// Special commands only outside of a multi-line statement
		if multiLineBuffer.Len() == 0 && strings.HasPrefix(input, ".") {
			if !cli.handleCommand(input) {
				cli.saveHistory()
				return
			}
			continue
		}

		// Accumulate until the statement ends with a semicolon
		multiLineBuffer.WriteString(input)

		trimmed := strings.TrimSpace(multiLineBuffer.String())
		if !strings.HasSuffix(trimmed, ";") {
			multiLineBuffer.WriteString(" ")
			continue
		}

		query := strings.TrimSuffix(trimmed, ";")
		multiLineBuffer.Reset()

		if strings.TrimSpace(query) == "" {
			continue
		}

		cli.addToHistory(query + ";")
		cli.execute(query)
	}
}

// execute runs one statement and renders its result. Changes are saved
// straight away when the CLI runs on a directory.
func (cli *CLI) execute(query string) {
	result, err := cli.engine.ExecuteSQL(query)
	if err != nil {
		cli.printError(err)
		return
	}
	result.Render(cli.out)

	if commit, ok := result.(db.CommitResult); ok && cli.autosave && commit.RowsAffected()+commit.TablesCreated+commit.TablesDeleted+commit.IndexesCreated+commit.IndexesDeleted > 0 {
		if _, err := cli.instance.Save(context.Background(), cli.identity); err != nil {
			cli.printError(fmt.Errorf("autosave: %w", err))
		}
	}
}

func (cli *CLI) getPrompt(multiLine bool) string {
	if multiLine {
		return promptStyle.Render("   ...>") + " "
	}
	return promptStyle.Render("minidb>") + " "
}

// handleCommand runs a dot command. It returns false when the CLI should
// exit.
func (cli *CLI) handleCommand(input string) bool {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) == 0 {
		return true
	}
	ctx := context.Background()

	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit", ".q":
		fmt.Fprintln(cli.out, successStyle.Render("Goodbye!"))
		return false

	case ".help", ".h", ".?":
		cli.printHelp()

	case ".tables":
		cli.execute("SHOW TABLES")

	case ".describe", ".schema":
		if len(parts) > 1 {
			cli.execute("DESCRIBE " + parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .describe <table>"))
		}

	case ".indexes":
		if len(parts) > 1 {
			cli.execute("SHOW INDEXES ON " + parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .indexes <table>"))
		}

	case ".save":
		if len(parts) > 1 {
			cli.saveTo(ctx, parts[1])
		} else {
			cli.save(ctx)
		}

	case ".load":
		if len(parts) > 1 {
			cli.loadFrom(ctx, parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .load <location>"))
		}

	case ".log":
		cli.printLog()

	case ".checkpoint":
		if len(parts) > 1 {
			cli.checkpoint(parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .checkpoint <name>"))
		}

	case ".asof":
		if len(parts) > 1 {
			cli.asOf(ctx, parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .asof <checkpoint|transaction>"))
		}

	case ".branch":
		cli.branch(parts[1:])

	case ".checkout":
		if len(parts) > 1 {
			cli.checkout(ctx, parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .checkout <branch>"))
		}

	case ".merge":
		if len(parts) > 1 {
			cli.merge(ctx, parts[1])
		} else {
			cli.printError(fmt.Errorf("usage: .merge <branch>"))
		}

	case ".remote":
		cli.remote(parts[1:])

	case ".push":
		cli.sync(ctx, parts[1:], true)

	case ".pull":
		cli.sync(ctx, parts[1:], false)

	case ".clear", ".cls":
		fmt.Fprint(cli.out, "\033[H\033[2J")

	case ".history":
		cli.printHistory()

	case ".version":
		fmt.Fprintf(cli.out, "MiniDB version %s\n", Version)

	case ".import":
		if len(parts) > 1 {
			if err := cli.importFile(parts[1]); err != nil {
				cli.printError(err)
			}
		} else {
			cli.printError(fmt.Errorf("usage: .import <file.sql>"))
		}

	default:
		cli.printError(fmt.Errorf("unknown command: %s (type .help for commands)", parts[0]))
	}

	return true
}

func (cli *CLI) printHelp() {
	fmt.Fprintln(cli.out)
	fmt.Fprintln(cli.out, headingStyle.Render("Special Commands:"))
	fmt.Fprintln(cli.out, "  .help, .h              Show this help message")
	fmt.Fprintln(cli.out, "  .quit, .exit           Exit the CLI")
	fmt.Fprintln(cli.out, "  .tables                List all tables")
	fmt.Fprintln(cli.out, "  .describe <table>      Show the columns of a table")
	fmt.Fprintln(cli.out, "  .indexes <table>       Show the indexes of a table")
	fmt.Fprintln(cli.out, "  .save [location]       Save to the open store, or to a dir, file://, s3:// location")
	fmt.Fprintln(cli.out, "  .load <location>       Replace all tables with a saved copy")
	fmt.Fprintln(cli.out, "  .log                   Show recent saves")
	fmt.Fprintln(cli.out, "  .checkpoint <name>     Name the latest save")
	fmt.Fprintln(cli.out, "  .asof <name|id>        Load the tables as of an earlier save")
	fmt.Fprintln(cli.out, "  .branch [name]         List branches or branch from the latest save")
	fmt.Fprintln(cli.out, "  .checkout <branch>     Switch branch and reload its tables")
	fmt.Fprintln(cli.out, "  .merge <branch>        Fast-forward the current branch")
	fmt.Fprintln(cli.out, "  .remote [add <n> <u>]  List or add git remotes")
	fmt.Fprintln(cli.out, "  .push/.pull [remote]   Sync saves with a git remote")
	fmt.Fprintln(cli.out, "  .import <file>         Execute SQL statements from a file")
	fmt.Fprintln(cli.out, "  .history               Show command history")
	fmt.Fprintln(cli.out, "  .clear                 Clear the screen")
	fmt.Fprintln(cli.out, "  .version               Show version info")
	fmt.Fprintln(cli.out)
	fmt.Fprintln(cli.out, headingStyle.Render("SQL Commands:"))
	fmt.Fprintln(cli.out, "  CREATE TABLE <table> (<column> <type> [PRIMARY KEY|UNIQUE|NOT NULL], ...);")
	fmt.Fprintln(cli.out, "  CREATE [UNIQUE] INDEX <name> ON <table> (<column>);")
	fmt.Fprintln(cli.out, "  DROP TABLE <table>;  DROP INDEX <name>;")
	fmt.Fprintln(cli.out, "  INSERT INTO <table> [(<cols>)] VALUES (<vals>), ...;")
	fmt.Fprintln(cli.out, "  SELECT <cols> FROM <table> [JOIN <table> ON <a> = <b>] [WHERE ...];")
	fmt.Fprintln(cli.out, "  UPDATE <table> SET <col> = <val>, ... [WHERE ...];")
	fmt.Fprintln(cli.out, "  DELETE FROM <table> [WHERE ...];")
	fmt.Fprintln(cli.out, "  DESCRIBE <table>;  SHOW TABLES;  SHOW INDEXES ON <table>;")
	fmt.Fprintln(cli.out)
	fmt.Fprintf(cli.out, "%s INT, FLOAT, TEXT, BOOL\n", headingStyle.Render("Types:"))
	fmt.Fprintf(cli.out, "%s =, <>, <, <=, >, >= joined by AND\n", headingStyle.Render("Conditions:"))
	fmt.Fprintln(cli.out)
}

func (cli *CLI) save(ctx context.Context) {
	txn, err := cli.instance.Save(ctx, cli.identity)
	if err != nil {
		cli.printError(err)
		return
	}
	cli.printSuccess("Saved %s", txn.Short())
}

func (cli *CLI) saveTo(ctx context.Context, location string) {
	store, err := ps.NewURLStore(ctx, location, cli.s3)
	if err != nil {
		cli.printError(err)
		return
	}
	if _, err := cli.instance.Database().SaveAll(ctx, store, cli.identity); err != nil {
		cli.printError(err)
		return
	}
	cli.printSuccess("Saved %d table(s) to %s", len(cli.instance.Database().List()), location)
}

func (cli *CLI) loadFrom(ctx context.Context, location string) {
	store, err := ps.NewURLStore(ctx, location, cli.s3)
	if err != nil {
		cli.printError(err)
		return
	}
	cli.load(ctx, store, location)
}

func (cli *CLI) load(ctx context.Context, store ps.SnapshotStore, from string) {
	if err := cli.instance.Database().LoadAll(ctx, store); err != nil {
		cli.printError(err)
		return
	}
	cli.printSuccess("Loaded %d table(s) from %s", len(cli.instance.Database().List()), from)
}

func (cli *CLI) git() bool {
	if cli.persistence == nil {
		cli.printError(fmt.Errorf("the open store keeps no history"))
		return false
	}
	return true
}

func (cli *CLI) printLog() {
	if !cli.git() {
		return
	}
	history := cli.persistence.History(20)
	if len(history) == 0 {
		fmt.Fprintln(cli.out, "Nothing saved yet")
		return
	}
	for _, txn := range history {
		fmt.Fprintf(cli.out, "  %s  %s  %s  %s\n",
			promptStyle.Render(txn.Short()), txn.When.Format("2006-01-02 15:04:05"), txn.Author, truncate(txn.Message, 40))
	}
}

func (cli *CLI) checkpoint(name string) {
	if !cli.git() {
		return
	}
	if err := cli.persistence.Checkpoint(name, nil); err != nil {
		cli.printError(err)
		return
	}
	cli.printSuccess("Checkpoint %s created", name)
}

func (cli *CLI) asOf(ctx context.Context, ref string) {
	if !cli.git() {
		return
	}
	txn, err := cli.persistence.Resolve(ref)
	if err != nil {
		cli.printError(err)
		return
	}
	cli.load(ctx, cli.persistence.AsOf(txn), txn.Short())
}

func (cli *CLI) branch(args []string) {
	if !cli.git() {
		return
	}
	if len(args) > 0 {
		if err := cli.persistence.Branch(args[0], nil); err != nil {
			cli.printError(err)
			return
		}
		cli.printSuccess("Branch %s created", args[0])
		return
	}
	branches, err := cli.persistence.ListBranches()
	if err != nil {
		cli.printError(err)
		return
	}
	current, _ := cli.persistence.CurrentBranch()
	for _, name := range branches {
		if name == current {
			fmt.Fprintln(cli.out, promptStyle.Render("* "+name))
		} else {
			fmt.Fprintln(cli.out, "  "+name)
		}
	}
}

func (cli *CLI) checkout(ctx context.Context, name string) {
	if !cli.git() {
		return
	}
	if err := cli.persistence.Checkout(name); err != nil {
		cli.printError(err)
		return
	}
	cli.load(ctx, cli.persistence, name)
}

func (cli *CLI) merge(ctx context.Context, name string) {
	if !cli.git() {
		return
	}
	txn, err := cli.persistence.Merge(name)
	if err != nil {
		cli.printError(err)
		return
	}
	cli.load(ctx, cli.persistence, txn.Short())
}

func (cli *CLI) remote(args []string) {
	if !cli.git() {
		return
	}
	if len(args) == 3 && strings.EqualFold(args[0], "add") {
		if err := cli.persistence.AddRemote(args[1], args[2]); err != nil {
			cli.printError(err)
			return
		}
		cli.printSuccess("Remote %s added", args[1])
		return
	}
	remotes, err := cli.persistence.Remotes()
	if err != nil {
		cli.printError(err)
		return
	}
	for _, remote := range remotes {
		fmt.Fprintf(cli.out, "  %s  %s\n", remote.Name, strings.Join(remote.URLs, ", "))
	}
}

func (cli *CLI) sync(ctx context.Context, args []string, push bool) {
	if !cli.git() {
		return
	}
	var remote string
	if len(args) > 0 {
		remote = args[0]
	}
	if push {
		if err := cli.persistence.Push(remote, cli.auth); err != nil {
			cli.printError(err)
			return
		}
		cli.printSuccess("Pushed")
		return
	}
	if err := cli.persistence.Pull(remote, cli.auth); err != nil {
		cli.printError(err)
		return
	}
	cli.load(ctx, cli.persistence, "pull")
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	if len(cli.history) > historyLimit {
		cli.history = cli.history[len(cli.history)-historyLimit:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Fprintln(cli.out, "No command history")
		return
	}

	start := max(len(cli.history)-20, 0)
	for i := start; i < len(cli.history); i++ {
		fmt.Fprintf(cli.out, "  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".minidb_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}

	file, err := os.Create(cli.historyFile)
	if err != nil {
		cli.logger.Debug("history not saved", "error", err)
		return
	}
	defer file.Close()

	start := max(len(cli.history)-historyLimit, 0)
	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}

// importFile reads and executes SQL statements from a file
func (cli *CLI) importFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	successCount := 0
	errorCount := 0
	changed := false

	for i, stmt := range splitStatements(string(data)) {
		result, err := cli.engine.ExecuteSQL(stmt)
		if err != nil {
			fmt.Fprintln(cli.out, errorStyle.Render(fmt.Sprintf("[%d] ✗ %s", i+1, truncate(stmt, 50))))
			fmt.Fprintf(cli.out, "      Error: %v\n", err)
			errorCount++
			continue
		}
		successCount++

		switch r := result.(type) {
		case db.CommitResult:
			var details []string
			if r.TablesCreated > 0 {
				details = append(details, fmt.Sprintf("%d table created", r.TablesCreated))
			}
			if r.TablesDeleted > 0 {
				details = append(details, fmt.Sprintf("%d table deleted", r.TablesDeleted))
			}
			if r.IndexesCreated > 0 {
				details = append(details, fmt.Sprintf("%d index created", r.IndexesCreated))
			}
			if r.RecordsWritten > 0 {
				details = append(details, fmt.Sprintf("%d written", r.RecordsWritten))
			}
			if r.RecordsUpdated > 0 {
				details = append(details, fmt.Sprintf("%d updated", r.RecordsUpdated))
			}
			if r.RecordsDeleted > 0 {
				details = append(details, fmt.Sprintf("%d deleted", r.RecordsDeleted))
			}
			detailStr := ""
			if len(details) > 0 {
				detailStr = " (" + strings.Join(details, ", ") + ")"
			}
			changed = true
			fmt.Fprintln(cli.out, successStyle.Render(fmt.Sprintf("[%d] ✓ %s%s", i+1, truncate(stmt, 50), detailStr)))
		case db.QueryResult:
			fmt.Fprintln(cli.out, successStyle.Render(fmt.Sprintf("[%d] ✓ %s (%d rows)", i+1, truncate(stmt, 50), r.RecordsRead)))
		}
	}

	fmt.Fprintln(cli.out)
	cli.printSuccess("Import complete: %d succeeded, %d failed", successCount, errorCount)

	if changed && cli.autosave {
		if _, err := cli.instance.Save(context.Background(), cli.identity); err != nil {
			return fmt.Errorf("autosave: %w", err)
		}
	}
	return nil
}

// splitStatements splits SQL content into individual statements
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		// '' inside a literal toggles twice and stays in the string
		if ch == '\'' {
			inString = !inString
		}

		if !inString && ch == '-' && i+1 < len(content) && content[i+1] == '-' {
			for i < len(content) && content[i] != '\n' {
				i++
			}
			continue
		}

		if !inString && ch == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}

		current.WriteByte(ch)
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// truncate shortens a string to max length with ellipsis
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
