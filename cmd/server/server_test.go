package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"maps"
	"math/big"
	"net"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/MiniDB"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/db"
	"github.com/nickyhof/MiniDB/ps"
)

func openTestInstance(t *testing.T) (*MiniDB.Instance, *ps.Persistence) {
	t.Helper()
	persistence, err := ps.NewMemoryPersistence()
	if err != nil {
		t.Fatalf("Failed to create persistence: %v", err)
	}
	instance, err := MiniDB.Open(context.Background(), persistence)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	return instance, persistence
}

func setupTestServer(t *testing.T) (*Server, func()) {
	instance, _ := openTestInstance(t)
	identity := core.Identity{Name: "test", Email: "test@test.com"}

	server := NewServer(instance, identity)
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	return server, func() {
		server.Stop()
	}
}

// client is one open connection to a test server.
type client struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) send(line string) Response {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
	reply, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("Failed to read response for %q: %v", line, err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(reply), &resp); err != nil {
		c.t.Fatalf("Failed to parse response for %q: %v", line, err)
	}
	return resp
}

func sendQuery(t *testing.T, addr, query string) Response {
	t.Helper()
	return dial(t, addr).send(query)
}

func TestServerStartStop(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server.Addr() == "" {
		t.Error("Expected non-empty address")
	}
	if server.TLSEnabled() {
		t.Error("Expected TLS to be disabled")
	}
}

func TestServerStopWithOpenConnection(t *testing.T) {
	server, _ := setupTestServer(t)
	dial(t, server.Addr())

	stopped := make(chan struct{})
	go func() {
		server.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an idle connection")
	}
}

func TestServerCreateTable(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := sendQuery(t, server.Addr(), "CREATE TABLE users (id INT PRIMARY KEY, email TEXT UNIQUE)")
	if !resp.Success {
		t.Fatalf("Expected success, got error: %s", resp.Error)
	}
	if resp.Type != "commit" {
		t.Errorf("Expected commit type, got: %s", resp.Type)
	}

	var cr CommitResponse
	if err := json.Unmarshal(resp.Result, &cr); err != nil {
		t.Fatalf("Failed to parse commit result: %v", err)
	}
	if cr.TablesCreated != 1 || cr.IndexesCreated != 2 {
		t.Errorf("Expected 1 table and 2 indexes created, got %+v", cr)
	}
	if cr.Transaction == "" {
		t.Error("Expected the change to be saved")
	}
}

func TestServerInsertAndSelect(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	sendQuery(t, server.Addr(), "CREATE TABLE items (id INT PRIMARY KEY, value TEXT)")

	resp := sendQuery(t, server.Addr(), "INSERT INTO items (id, value) VALUES (1, 'one'), (2, 'two')")
	if !resp.Success {
		t.Fatalf("Failed to insert: %s", resp.Error)
	}
	var cr CommitResponse
	json.Unmarshal(resp.Result, &cr)
	if cr.RecordsWritten != 2 {
		t.Errorf("Expected 2 records written, got: %d", cr.RecordsWritten)
	}

	resp = sendQuery(t, server.Addr(), "SELECT * FROM items WHERE id = 2")
	if !resp.Success {
		t.Fatalf("Select failed: %s", resp.Error)
	}
	if resp.Type != "query" {
		t.Errorf("Expected query type, got: %s", resp.Type)
	}

	var qr QueryResponse
	if err := json.Unmarshal(resp.Result, &qr); err != nil {
		t.Fatalf("Failed to parse query result: %v", err)
	}
	if !slices.Equal(qr.Columns, []string{"id", "value"}) {
		t.Errorf("Unexpected columns %v", qr.Columns)
	}
	if len(qr.Data) != 1 || qr.Data[0][1] == nil || *qr.Data[0][1] != "two" {
		t.Errorf("Unexpected data %v", qr.Data)
	}
	if !slices.Equal(qr.Plan, []string{"index lookup items_pkey"}) {
		t.Errorf("Unexpected plan %v", qr.Plan)
	}
}

func TestServerNullCells(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := dial(t, server.Addr())
	c.send("CREATE TABLE notes (id INT PRIMARY KEY, body TEXT)")
	c.send("INSERT INTO notes VALUES (1, 'NULL'), (2, NULL)")

	resp := c.send("SELECT body FROM notes WHERE id >= 1")
	if !resp.Success {
		t.Fatalf("Select failed: %s", resp.Error)
	}
	if !strings.Contains(string(resp.Result), `"data":[["NULL"],[null]]`) {
		t.Errorf("Expected text NULL and a JSON null, got %s", resp.Result)
	}

	var qr QueryResponse
	if err := json.Unmarshal(resp.Result, &qr); err != nil {
		t.Fatalf("Failed to parse query result: %v", err)
	}
	if len(qr.Data) != 2 || qr.Data[0][0] == nil || *qr.Data[0][0] != "NULL" || qr.Data[1][0] != nil {
		t.Errorf("Unexpected data %v", qr.Data)
	}
}

func TestServerError(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := sendQuery(t, server.Addr(), "SELECT * FROM nonexistent")
	if resp.Success {
		t.Error("Expected failure for unknown table")
	}
	if !strings.Contains(resp.Error, "nonexistent") {
		t.Errorf("Expected error to name the table, got: %s", resp.Error)
	}
}

func TestServerSyntaxError(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := sendQuery(t, server.Addr(), "SELEC * FROM t")
	if resp.Success {
		t.Error("Expected failure for syntax error")
	}
	if resp.Error == "" {
		t.Error("Expected error message")
	}
}

func TestServerPersistentConnection(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := dial(t, server.Addr())

	queries := []string{
		"CREATE TABLE test (id INT PRIMARY KEY)",
		"",
		"INSERT INTO test (id) VALUES (1)",
		"SELECT * FROM test",
	}

	for _, query := range queries {
		if query == "" {
			// blank lines get no response
			c.conn.Write([]byte("\n"))
			continue
		}
		if resp := c.send(query); !resp.Success {
			t.Errorf("Query '%s' failed: %s", query, resp.Error)
		}
	}
}

func TestServerQuit(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	c := dial(t, server.Addr())
	c.conn.Write([]byte("QUIT\n"))
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.reader.ReadString('\n'); err == nil {
		t.Error("Expected the server to close the connection")
	}
}

func TestServerChangesAreSaved(t *testing.T) {
	instance, persistence := openTestInstance(t)
	server := NewServer(instance, core.Identity{Name: "test", Email: "test@test.com"})
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	c := dial(t, server.Addr())
	c.send("CREATE TABLE t (id INT PRIMARY KEY, v TEXT)")
	c.send("INSERT INTO t VALUES (1, 'a'), (2, NULL)")
	c.send("SELECT * FROM t")

	if got := len(persistence.History(10)); got != 2 {
		t.Errorf("Expected one save per change, got %d", got)
	}

	reopened, err := MiniDB.Open(context.Background(), persistence)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	result, err := reopened.Engine().ExecuteSQL("SELECT v FROM t WHERE id = 2")
	if err != nil {
		t.Fatalf("Select on reopened instance failed: %v", err)
	}
	if rows := result.(db.QueryResult).Data(); len(rows) != 1 || rows[0][0] != "NULL" {
		t.Errorf("Unexpected reopened rows %v", rows)
	}
}

// setupAuthTestServer creates a server with authentication enabled
func setupAuthTestServer(t *testing.T, config *AuthConfig) (*Server, *ps.Persistence, func()) {
	instance, persistence := openTestInstance(t)

	server := NewServerWithAuth(instance, config)
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	return server, persistence, func() {
		server.Stop()
	}
}

// createTestJWT creates an HS256 token for testing
func createTestJWT(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to create test JWT: %v", err)
	}
	return tokenString
}

func userClaims(name, email string) jwt.MapClaims {
	return jwt.MapClaims{
		"name":  name,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestAuthRequired(t *testing.T) {
	server, _, cleanup := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: "test-secret"})
	defer cleanup()

	resp := sendQuery(t, server.Addr(), "CREATE TABLE t (id INT PRIMARY KEY)")
	if resp.Success {
		t.Error("Expected failure when not authenticated")
	}
	if !strings.Contains(resp.Error, "authentication required") {
		t.Errorf("Expected 'authentication required' error, got: %s", resp.Error)
	}
}

func TestAuthWithValidJWT(t *testing.T) {
	secret := "test-secret"
	server, _, cleanup := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: secret})
	defer cleanup()

	c := dial(t, server.Addr())
	resp := c.send("AUTH JWT " + createTestJWT(t, secret, userClaims("Test User", "test@example.com")))
	if !resp.Success {
		t.Fatalf("Auth failed: %s", resp.Error)
	}
	if resp.Type != "auth" {
		t.Errorf("Expected 'auth' type, got: %s", resp.Type)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Result, &authResp); err != nil {
		t.Fatalf("Failed to parse auth result: %v", err)
	}
	if !authResp.Authenticated {
		t.Error("Expected authenticated to be true")
	}
	if authResp.Identity != "Test User <test@example.com>" {
		t.Errorf("Expected identity 'Test User <test@example.com>', got: %s", authResp.Identity)
	}
	if authResp.ExpiresIn <= 0 {
		t.Errorf("Expected a positive expiry, got %d", authResp.ExpiresIn)
	}

	if resp := c.send("CREATE TABLE t (id INT PRIMARY KEY)"); !resp.Success {
		t.Errorf("Query after auth failed: %s", resp.Error)
	}
}

func TestAuthRejected(t *testing.T) {
	secret := "test-secret"
	config := &AuthConfig{Enabled: true, JWTSecret: secret, Issuer: "minidb-tests", Audience: "minidb"}
	server, _, cleanup := setupAuthTestServer(t, config)
	defer cleanup()

	valid := userClaims("Test User", "test@example.com")
	valid["iss"] = "minidb-tests"
	valid["aud"] = "minidb"

	withClaim := func(key string, value any) jwt.MapClaims {
		claims := maps.Clone(valid)
		claims[key] = value
		return claims
	}
	anonymous := maps.Clone(valid)
	delete(anonymous, "name")
	delete(anonymous, "email")

	tests := []struct {
		name string
		line string
	}{
		{"wrong secret", "AUTH JWT " + createTestJWT(t, "wrong-secret", valid)},
		{"expired", "AUTH JWT " + createTestJWT(t, secret, withClaim("exp", time.Now().Add(-time.Hour).Unix()))},
		{"wrong issuer", "AUTH JWT " + createTestJWT(t, secret, withClaim("iss", "someone-else"))},
		{"wrong audience", "AUTH JWT " + createTestJWT(t, secret, withClaim("aud", "other"))},
		{"no identity", "AUTH JWT " + createTestJWT(t, secret, anonymous)},
		{"garbage", "AUTH JWT not.a.token"},
		{"unsupported type", "AUTH BASIC dXNlcjpwYXNz"},
		{"missing token", "AUTH JWT"},
	}

	// sanity check that the base claims pass
	if resp := sendQuery(t, server.Addr(), "AUTH JWT "+createTestJWT(t, secret, valid)); !resp.Success {
		t.Fatalf("Expected valid claims to authenticate, got %s", resp.Error)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := sendQuery(t, server.Addr(), test.line)
			if resp.Success {
				t.Error("Expected auth to fail")
			}
			if resp.Error == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestAuthFailureClearsIdentity(t *testing.T) {
	secret := "test-secret"
	server, _, cleanup := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: secret})
	defer cleanup()

	c := dial(t, server.Addr())
	c.send("AUTH JWT " + createTestJWT(t, secret, userClaims("A", "a@example.com")))
	c.send("AUTH JWT bad")

	if resp := c.send("CREATE TABLE t (id INT PRIMARY KEY)"); resp.Success {
		t.Error("Expected a failed AUTH to drop the earlier identity")
	}
}

// TestIdentityInCommitsUnauthenticated verifies the default identity is used in Git commits
// when auth is disabled
func TestIdentityInCommitsUnauthenticated(t *testing.T) {
	instance, persistence := openTestInstance(t)
	defaultIdentity := core.Identity{Name: "Default User", Email: "default@test.com"}

	server := NewServer(instance, defaultIdentity)
	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp := sendQuery(t, server.Addr(), "CREATE TABLE identity1 (id INT PRIMARY KEY)")
	if !resp.Success {
		t.Fatalf("Query failed: %s", resp.Error)
	}

	txn := persistence.LatestTransaction()
	expectedAuthor := "Default User <default@test.com>"
	if txn.Author != expectedAuthor {
		t.Errorf("Expected commit author '%s', got '%s'", expectedAuthor, txn.Author)
	}
}

// TestIdentityInCommitsAuthenticated verifies the JWT identity is used in Git commits
func TestIdentityInCommitsAuthenticated(t *testing.T) {
	secret := "test-secret-for-identity"
	server, persistence, cleanup := setupAuthTestServer(t, &AuthConfig{Enabled: true, JWTSecret: secret})
	defer cleanup()

	jwtName := "JWT Test User"
	jwtEmail := "jwtuser@example.com"

	c := dial(t, server.Addr())
	if resp := c.send("AUTH JWT " + createTestJWT(t, secret, userClaims(jwtName, jwtEmail))); !resp.Success {
		t.Fatalf("Auth failed: %s", resp.Error)
	}
	if resp := c.send("CREATE TABLE identity2 (id INT PRIMARY KEY)"); !resp.Success {
		t.Fatalf("Query failed: %s", resp.Error)
	}

	txn := persistence.LatestTransaction()
	expectedAuthor := jwtName + " <" + jwtEmail + ">"
	if txn.Author != expectedAuthor {
		t.Errorf("Expected commit author '%s', got '%s'", expectedAuthor, txn.Author)
	}
}

func TestParseAuthCommand(t *testing.T) {
	tests := []struct {
		line     string
		authType string
		token    string
		wantErr  bool
	}{
		{"AUTH JWT abc", "JWT", "abc", false},
		{"auth jwt abc", "JWT", "abc", false},
		{"AUTH JWT", "", "", true},
		{"AUTH KERBEROS abc", "", "", true},
		{"SELECT 1", "", "", true},
	}

	for _, test := range tests {
		authType, token, err := parseAuthCommand(test.line)
		if (err != nil) != test.wantErr {
			t.Errorf("parseAuthCommand(%q) error = %v, wantErr %v", test.line, err, test.wantErr)
			continue
		}
		if authType != test.authType || token != test.token {
			t.Errorf("parseAuthCommand(%q) = %q, %q", test.line, authType, token)
		}
	}
}

// === TLS Tests ===

// setupTLSTestServer creates a server with TLS enabled using test certificates
func setupTLSTestServer(t *testing.T) (*Server, string, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	certFile := tmpDir + "/cert.pem"
	keyFile := tmpDir + "/key.pem"
	generateTestCertificate(t, certFile, keyFile)

	instance, _ := openTestInstance(t)
	identity := core.Identity{Name: "test", Email: "test@test.com"}

	server := NewServer(instance, identity)
	if err := server.StartTLS("127.0.0.1:0", certFile, keyFile); err != nil {
		t.Fatalf("Failed to start TLS server: %v", err)
	}

	return server, certFile, func() {
		server.Stop()
	}
}

// generateTestCertificate creates a self-signed certificate for testing
func generateTestCertificate(t *testing.T, certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatalf("Failed to write cert file: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}
}

func dialTLS(t *testing.T, addr string, config *tls.Config) *client {
	t.Helper()
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", addr, config)
	if err != nil {
		t.Fatalf("Failed to connect with TLS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func TestTLSServerStartStop(t *testing.T) {
	server, _, cleanup := setupTLSTestServer(t)
	defer cleanup()

	if server.Addr() == "" {
		t.Error("Expected non-empty address")
	}
	if !server.TLSEnabled() {
		t.Error("Expected TLS to be enabled")
	}
}

func TestTLSServerConnection(t *testing.T) {
	server, certFile, cleanup := setupTLSTestServer(t)
	defer cleanup()

	certPool := x509.NewCertPool()
	certData, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("Failed to read cert: %v", err)
	}
	certPool.AppendCertsFromPEM(certData)

	c := dialTLS(t, server.Addr(), &tls.Config{RootCAs: certPool, ServerName: "localhost"})

	resp := c.send("CREATE TABLE tlstest (id INT PRIMARY KEY)")
	if !resp.Success {
		t.Errorf("Query failed: %s", resp.Error)
	}
	if resp.Type != "commit" {
		t.Errorf("Expected commit type, got: %s", resp.Type)
	}
}

func TestTLSServerInvalidCert(t *testing.T) {
	server, _, cleanup := setupTLSTestServer(t)
	defer cleanup()

	// system roots do not include the self-signed certificate
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 2 * time.Second}, "tcp", server.Addr(), &tls.Config{ServerName: "localhost"})
	if err == nil {
		conn.Close()
		t.Error("Expected TLS connection to fail with invalid certificate")
	}
}

func TestTLSServerWithInsecureSkipVerify(t *testing.T) {
	server, _, cleanup := setupTLSTestServer(t)
	defer cleanup()

	c := dialTLS(t, server.Addr(), &tls.Config{InsecureSkipVerify: true})
	if resp := c.send("SHOW TABLES"); !resp.Success {
		t.Errorf("Query failed: %s", resp.Error)
	}
}

func TestStartTLSMissingCertificate(t *testing.T) {
	instance, _ := openTestInstance(t)
	server := NewServer(instance, core.Identity{Name: "test", Email: "test@test.com"})
	if err := server.StartTLS("127.0.0.1:0", "missing.pem", "missing.key"); err == nil {
		server.Stop()
		t.Error("Expected missing certificate to fail")
	}
}
