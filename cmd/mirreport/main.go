// mirreport serves the plots and tables of a finished mirde run over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbocation/mirnade"

	_ "github.com/carbocation/mirnade/compileinfoprint"
)

func main() {
	errors := make(chan error, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	dir := flag.String("dir", "", "Output directory of a mirde run")
	port := flag.Int("port", 9020, "Port for HTTP server")
	maxRows := flag.Int("max-rows", 500, "Maximum number of table rows rendered per page")
	flag.Parse()

	if *dir == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	global := &Global{
		Site:    "mirnade report",
		Dir:     mirnade.ExpandHome(*dir),
		MaxRows: *maxRows,
		log:     log.New(os.Stderr, log.Prefix(), log.Ldate|log.Ltime),
	}
	if _, err := os.Stat(global.Dir); err != nil {
		log.Fatalln(err)
	}

	handler, err := router(global)
	if err != nil {
		log.Fatalln(err)
	}

	go func() {
		global.log.Println("Serving", global.Dir, "on port", *port)
		if err := http.ListenAndServe(fmt.Sprintf(`:%d`, *port), handler); err != nil {
			errors <- err
		}
	}()

	select {
	case s := <-sig:
		global.log.Printf("Exit: %s\n", s)
	case err := <-errors:
		global.log.Println("Exiting due to error", err)
		os.Exit(1)
	}
}
