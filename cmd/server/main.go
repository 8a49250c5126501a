package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/nickyhof/MiniDB"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/ps"
)

// Version is set at build time via -ldflags
var Version = "dev"

var bannerStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	Bold(true).
	Width(39).
	Align(lipgloss.Center)

func main() {
	port := flag.Int("port", 3306, "TCP port to listen on")
	baseDir := flag.String("baseDir", "", "Base directory for persistence (memory if empty)")
	gitUrl := flag.String("gitUrl", "", "Git URL to clone the database from")
	order := flag.Int("order", 0, "B-tree order of every index (0 for the default)")
	tlsCert := flag.String("tlsCert", "", "TLS certificate file")
	tlsKey := flag.String("tlsKey", "", "TLS key file")
	jwtSecret := flag.String("jwtSecret", os.Getenv("MINIDB_JWT_SECRET"), "Shared secret for JWT authentication (disabled if empty)")
	jwtIssuer := flag.String("jwtIssuer", "", "Expected JWT issuer")
	jwtAudience := flag.String("jwtAudience", "", "Expected JWT audience")
	logLevel := flag.String("logLevel", "info", "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("MiniDB SQL Server v%s\n", Version)
		return
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var persistence *ps.Persistence
	var err error
	if *baseDir == "" {
		logger.Info("using memory persistence")
		persistence, err = ps.NewMemoryPersistence()
	} else {
		logger.Info("using file persistence", "dir", *baseDir)
		var gitUrlPtr *string
		if *gitUrl != "" {
			gitUrlPtr = gitUrl
		}
		persistence, err = ps.NewFilePersistence(*baseDir, gitUrlPtr)
	}
	if err != nil {
		logger.Error("failed to initialize persistence", "error", err)
		os.Exit(1)
	}

	instance, err := MiniDB.Open(context.Background(), persistence, MiniDB.WithOrder(*order), MiniDB.WithLogger(logger))
	if err != nil {
		logger.Error("failed to load database", "error", err)
		os.Exit(1)
	}

	identity := core.Identity{Name: "MiniDB Server", Email: "server@minidb.local"}
	opts := []ServerOption{WithLogger(logger)}
	if *jwtSecret != "" {
		opts = append(opts, WithAuth(&AuthConfig{
			Enabled:   true,
			JWTSecret: *jwtSecret,
			Issuer:    *jwtIssuer,
			Audience:  *jwtAudience,
		}))
	}
	server := NewServer(instance, identity, opts...)

	addr := fmt.Sprintf(":%d", *port)
	if *tlsCert != "" || *tlsKey != "" {
		err = server.StartTLS(addr, *tlsCert, *tlsKey)
	} else {
		err = server.Start(addr)
	}
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(bannerStyle.Render(fmt.Sprintf("MiniDB SQL Server v%s\nIn-memory SQL with B-tree indexes", Version)))
	fmt.Println()
	fmt.Printf("Listening on port %d\n", *port)
	fmt.Println("Send SQL statements (one per line), 'quit' to disconnect")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	server.Stop()
	logger.Info("server stopped")
}
