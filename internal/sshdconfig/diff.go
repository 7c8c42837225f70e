package sshdconfig

// Diff lists the lines which differ between before and after, prefixed with "-" or "+".
//
// Lines are compared by position, which is exact for configurations produced by Apply since it
// never removes nor moves a line.
func Diff(before, after Config) []string {
	var d []string
	n := min(len(before.Lines), len(after.Lines))
	for i := 0; i < n; i++ {
		if before.Lines[i].Raw == after.Lines[i].Raw {
			continue
		}
		d = append(d, "-"+before.Lines[i].Raw, "+"+after.Lines[i].Raw)
	}
	for _, l := range before.Lines[n:] {
		d = append(d, "-"+l.Raw)
	}
	for _, l := range after.Lines[n:] {
		d = append(d, "+"+l.Raw)
	}
	return d
}
