// Package parsers reads delimited text files into header-keyed records.
//
// ParseCSV reads the header row synchronously and then streams data rows
// through a channel, so large files never have to sit in memory at once.
// ReadCSV and PreviewCSV drain that stream into a Table and treat any parse
// error as fatal for the whole file; no partial table is returned.
//
// Example usage:
//
//	file, _ := os.Open("leads.csv")
//	defer file.Close()
//	preview, err := parsers.PreviewCSV(ctx, file, 5, parsers.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(preview.Headers)
//
// Streaming callers must consume both channels (or cancel the context) to
// avoid goroutine leaks:
//
//	headers, records, errs, err := parsers.ParseCSV(ctx, file, parsers.Options{})
//	go func() {
//	    for err := range errs {
//	        log.Printf("CSV error: %v", err)
//	    }
//	}()
//	for record := range records {
//	    fmt.Println(record[headers[0]])
//	}
package parsers
