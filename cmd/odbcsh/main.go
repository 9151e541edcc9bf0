// Command odbcsh is an interactive SQL shell speaking the driver's boundary
// surface directly, the way an ODBC driver manager would. It exists for
// smoke-testing the driver against a live query federation service, or
// against the in-process mock compiler with --mock.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"docstore-odbc/internal/api"
	"docstore-odbc/internal/handles"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
	"docstore-odbc/pkg/sqlreturn"
)

type options struct {
	ConnString string `short:"c" long:"connect" env:"ODBCSH_CONNECT" description:"connection string (uri=...;database=...)"`
	Execute    string `short:"e" long:"execute" description:"run one statement and exit"`
	Mock       bool   `long:"mock" description:"use the in-process mock compiler instead of a live backend"`
	Dbg        bool   `long:"dbg" description:"debug mode"`
}

var revision = "latest"

func main() {
	fmt.Printf("odbcsh %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			os.Exit(1)
		}
		os.Exit(2)
	}
	if opts.Dbg {
		opts.ConnString = appendKeyword(opts.ConnString, "loglevel=debug")
	}

	if err := run(opts); err != nil {
		fmt.Printf("failed: %v\n", err)
		os.Exit(1)
	}
}

func appendKeyword(connString, kw string) string {
	if connString == "" {
		return kw
	}
	return strings.TrimRight(connString, ";") + ";" + kw
}

func run(opts options) error {
	env, code := api.AllocHandle(handles.KindEnvironment, handles.NullHandle)
	if !code.Succeeded() {
		return fmt.Errorf("allocating environment: %s", code)
	}
	defer api.FreeHandle(env)
	api.SetEnvAttr(env, api.EnvAttrOdbcVersion, api.OdbcVersion3)

	conn, code := api.AllocHandle(handles.KindConnection, env)
	if !code.Succeeded() {
		return diagErr("allocating connection", env, code)
	}
	defer api.FreeHandle(conn)

	connString := opts.ConnString
	if opts.Mock {
		compiler := sampleCompiler()
		api.SetCompiler(conn, compiler, compiler)
		connString = appendKeyword(connString, "uri=mongodb://mock;database=sample")
	}
	st := time.Now()
	if code := api.DriverConnect(conn, connString); !code.Succeeded() {
		return diagErr("connecting", conn, code)
	}
	defer api.Disconnect(conn)
	fmt.Printf("connected in %v\n", time.Since(st).Truncate(time.Millisecond))

	if opts.Execute != "" {
		return execute(conn, opts.Execute)
	}
	return repl(conn)
}

// repl reads statements from stdin until EOF or \q. Lines starting with a
// backslash are shell commands; everything else goes to the driver verbatim.
func repl(conn handles.Handle) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("sql> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == `\q`:
			return nil
		case line == `\types`:
			runCatalog(conn, func(stmt handles.Handle) sqlreturn.Code { return api.GetTypeInfo(stmt) })
		case line == `\tables`:
			runCatalog(conn, func(stmt handles.Handle) sqlreturn.Code { return api.Tables(stmt, "", "%") })
		case strings.HasPrefix(line, `\columns`):
			table := strings.TrimSpace(strings.TrimPrefix(line, `\columns`))
			if table == "" {
				table = "%"
			}
			runCatalog(conn, func(stmt handles.Handle) sqlreturn.Code { return api.Columns(stmt, "", table, "%") })
		case strings.HasPrefix(line, `\`):
			fmt.Printf("unknown command %s (try \\tables, \\columns <t>, \\types, \\q)\n", line)
		default:
			if err := execute(conn, line); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

func runCatalog(conn handles.Handle, fn func(stmt handles.Handle) sqlreturn.Code) {
	if err := withStatement(conn, fn); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func execute(conn handles.Handle, sql string) error {
	return withStatement(conn, func(stmt handles.Handle) sqlreturn.Code {
		return api.ExecDirect(stmt, sql)
	})
}

// withStatement allocates a statement, runs the operation, and prints the
// result set it produced.
func withStatement(conn handles.Handle, fn func(stmt handles.Handle) sqlreturn.Code) error {
	stmt, code := api.AllocHandle(handles.KindStatement, conn)
	if !code.Succeeded() {
		return diagErr("allocating statement", conn, code)
	}
	defer api.FreeHandle(stmt)

	if code := fn(stmt); !code.Succeeded() {
		return diagErr("executing", stmt, code)
	}
	return printResultSet(stmt)
}

func printResultSet(stmt handles.Handle) error {
	n, code := api.NumResultCols(stmt)
	if !code.Succeeded() {
		return diagErr("describing", stmt, code)
	}
	if n == 0 {
		fmt.Println("ok (no result set)")
		return nil
	}

	names := make([]string, n)
	for i := 1; i <= n; i++ {
		desc, code := api.DescribeCol(stmt, i)
		if !code.Succeeded() {
			return diagErr("describing", stmt, code)
		}
		names[i-1] = desc.Name
	}
	fmt.Println(strings.Join(names, "\t"))

	buf := make([]byte, 4096)
	rows := 0
	for {
		code := api.Fetch(stmt)
		if code == sqlreturn.NoData {
			break
		}
		if !code.Succeeded() {
			return diagErr("fetching", stmt, code)
		}
		cells := make([]string, n)
		for i := 1; i <= n; i++ {
			ind, code := api.GetData(stmt, i, typemap.CChar, buf)
			switch {
			case !code.Succeeded():
				cells[i-1] = "<error>"
				printDiags(stmt)
			case ind == -1:
				cells[i-1] = "NULL"
			default:
				written := int(ind)
				if written > len(buf)-1 {
					written = len(buf) - 1
				}
				cells[i-1] = string(buf[:written])
			}
		}
		fmt.Println(strings.Join(cells, "\t"))
		rows++
	}
	fmt.Printf("%d row(s)\n", rows)
	return nil
}

// diagErr drains the handle's diagnostic records into one error.
func diagErr(action string, h handles.Handle, code sqlreturn.Code) error {
	var parts []string
	for i := 1; ; i++ {
		rec, code := api.GetDiagRec(h, i)
		if code != sqlreturn.Success {
			break
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", rec.State, rec.Message))
	}
	if len(parts) == 0 {
		return fmt.Errorf("%s: %s", action, code)
	}
	return fmt.Errorf("%s: %s", action, strings.Join(parts, "; "))
}

func printDiags(h handles.Handle) {
	for i := 1; ; i++ {
		rec, code := api.GetDiagRec(h, i)
		if code != sqlreturn.Success {
			return
		}
		fmt.Printf("  diag %d: [%s] %s\n", i, rec.State, rec.Message)
	}
}

// sampleCompiler builds the mock dataset served in --mock mode.
func sampleCompiler() *translator.MockCompiler {
	mc := translator.NewMockCompiler()
	mc.AddCollection(translator.MockCollection{
		Database: "sample",
		Name:     "orders",
		Fields: []typemap.FieldSchema{
			{Name: "_id", Types: []string{"objectId"}},
			{Name: "item", Types: []string{"string"}},
			{Name: "qty", Types: []string{"int"}},
			{Name: "price", Types: []string{"double"}},
			{Name: "placed", Types: []string{"date"}},
		},
		Docs: []bson.D{
			{{Key: "_id", Value: newObjectID(1)}, {Key: "item", Value: "notebook"}, {Key: "qty", Value: int32(3)},
				{Key: "price", Value: 12.5}, {Key: "placed", Value: time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)}},
			{{Key: "_id", Value: newObjectID(2)}, {Key: "item", Value: "pen"}, {Key: "qty", Value: int32(12)},
				{Key: "price", Value: 1.2}, {Key: "placed", Value: time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC)}},
		},
	})
	return mc
}

func newObjectID(n byte) primitive.ObjectID {
	var id primitive.ObjectID
	id[11] = n
	return id
}
