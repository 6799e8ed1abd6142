// Package files discovers dataset input files on disk.
//
// Discovery walks a raw-data tree recursively and splits what it finds into
// files a caller can handle and files it cannot, both sorted by path so
// every run visits inputs in the same order:
//
//	d := files.NewDiscovery(paths.RawDir)
//	res, err := d.Walk(func(ext string) bool { return ext == ".csv" })
//	for _, f := range res.Files {
//	    // process f.Path
//	}
//
// Hidden files, editor lock files and Office temp files (~$report.xlsx) are
// ignored entirely.
package files
