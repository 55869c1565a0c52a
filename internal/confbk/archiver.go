package confbk

// Archiver turns an output directory into a single archive file.
type Archiver interface {
	// Archive writes dir to dest. Member names are rooted at the base name
	// of dir. dest appears only once it is completely written. Returns the
	// number of members written.
	Archive(dir, dest string) (int, error)

	// Verify decodes the archive at path end to end and returns its
	// member count.
	Verify(path string) (int, error)
}
