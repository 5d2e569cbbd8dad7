package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"

	"kiosk/internal/attendance"
)

// qrgen renders badge QR codes for every student in a roster partition
// file: one PNG per student, payload "LRN:<identifier>".
func main() {
	var (
		in   = flag.String("in", "", "roster partition JSON file, e.g. grade7-tesla.json")
		out  = flag.String("out", "badges", "output directory for PNG files")
		size = flag.Int("size", 256, "image size in pixels")
	)
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatalf("read roster: %v", err)
	}
	var doc struct {
		Students []attendance.Student `json:"students"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Fatalf("parse roster: %v", err)
	}
	if len(doc.Students) == 0 {
		log.Fatalf("no students in %s", *in)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	for _, s := range doc.Students {
		if s.LRN == "" {
			log.Printf("skipping %q: no LRN", s.FullName)
			continue
		}
		path := filepath.Join(*out, s.LRN+".png")
		if err := qrcode.WriteFile("LRN:"+s.LRN, qrcode.Medium, *size, path); err != nil {
			log.Fatalf("write badge for %s: %v", s.LRN, err)
		}
		fmt.Printf("%s -> %s\n", s.FullName, path)
	}
}
