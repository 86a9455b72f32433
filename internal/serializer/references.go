package serializer

import (
	"context"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/wire"
)

func (r *Registry) encodeMetadataReference(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.MetadataReference](kind.MetadataReference, value)
	if err != nil {
		return err
	}
	w.WriteString(v.FilePath)
	w.WriteStrings(v.Aliases)
	w.WriteBool(v.EmbedInteropTypes)
	w.WriteChecksum(r.fingerprintFile(v.FilePath))
	return nil
}

func decodeMetadataReference(_ context.Context, r *wire.Reader) (any, error) {
	v := &ir.MetadataReference{
		FilePath:          r.ReadString(),
		Aliases:           r.ReadStrings(),
		EmbedInteropTypes: r.ReadBool(),
	}
	r.ReadChecksum()
	return v, nil
}

func (r *Registry) encodeAnalyzerReference(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.AnalyzerReference](kind.AnalyzerReference, value)
	if err != nil {
		return err
	}
	w.WriteString(v.FullPath)
	w.WriteString(v.Display)
	w.WriteChecksum(r.fingerprintFile(v.FullPath))
	return nil
}

func decodeAnalyzerReference(_ context.Context, r *wire.Reader) (any, error) {
	v := &ir.AnalyzerReference{
		FullPath: r.ReadString(),
		Display:  r.ReadString(),
	}
	r.ReadChecksum()
	return v, nil
}

// fingerprintFile hashes the referenced file so that rebuilding a library
// changes the reference checksum. Failures are absorbed: the fingerprint
// becomes Null and a warning is logged.
func (r *Registry) fingerprintFile(path string) checksum.Checksum {
	if path == "" {
		return checksum.Null
	}
	f, err := r.openFile(path)
	if err != nil {
		r.logger.Warn("reference file unreadable, using null fingerprint",
			"path", path,
			"error", err,
		)
		return checksum.Null
	}
	defer f.Close()

	sum, err := checksum.CreateFromStream(f)
	if err != nil {
		r.logger.Warn("reference file read failed, using null fingerprint",
			"path", path,
			"error", err,
		)
		return checksum.Null
	}
	return sum
}
