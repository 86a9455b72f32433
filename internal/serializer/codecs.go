package serializer

import (
	"context"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/kind"
	"github.com/roach88/assetsync/internal/wire"
)

func (r *Registry) registerBuiltins() {
	builtins := map[kind.Kind]Codec{
		kind.SolutionAttributes: {Encode: encodeSolutionAttributes, Decode: decodeSolutionAttributes},
		kind.ProjectAttributes:  {Encode: encodeProjectAttributes, Decode: decodeProjectAttributes},
		kind.DocumentAttributes: {Encode: encodeDocumentAttributes, Decode: decodeDocumentAttributes},
		kind.CompilationOptions: {Encode: encodeCompilationOptions, Decode: decodeCompilationOptions},
		kind.ParseOptions:       {Encode: encodeParseOptions, Decode: decodeParseOptions},
		kind.ProjectReference:   {Encode: encodeProjectReference, Decode: decodeProjectReference},
		kind.MetadataReference:  {Encode: r.encodeMetadataReference, Decode: decodeMetadataReference},
		kind.AnalyzerReference:  {Encode: r.encodeAnalyzerReference, Decode: decodeAnalyzerReference},
		kind.SourceText:         {Encode: r.encodeSourceText, Decode: r.decodeSourceText, Fingerprint: fingerprintSourceText},
		kind.OptionSet:          {Encode: encodeOptionSet, Decode: decodeOptionSet},
	}
	for k, c := range builtins {
		r.codecs[k] = c
	}
}

// Attribute codecs deliberately omit Version: version stamps are local
// bookkeeping and must not influence checksums.

func encodeSolutionAttributes(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.SolutionAttributes](kind.SolutionAttributes, value)
	if err != nil {
		return err
	}
	w.WriteString(string(v.ID))
	w.WriteString(v.FilePath)
	return nil
}

func decodeSolutionAttributes(_ context.Context, r *wire.Reader) (any, error) {
	return &ir.SolutionAttributes{
		ID:       ir.SolutionID(r.ReadString()),
		FilePath: r.ReadString(),
	}, nil
}

func encodeProjectAttributes(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.ProjectAttributes](kind.ProjectAttributes, value)
	if err != nil {
		return err
	}
	w.WriteString(string(v.ID))
	w.WriteString(v.Name)
	w.WriteString(v.AssemblyName)
	w.WriteString(v.Language)
	w.WriteString(v.FilePath)
	w.WriteString(v.OutputFilePath)
	w.WriteString(v.DefaultNamespace)
	w.WriteBool(v.IsSubmission)
	return nil
}

func decodeProjectAttributes(_ context.Context, r *wire.Reader) (any, error) {
	return &ir.ProjectAttributes{
		ID:               ir.ProjectID(r.ReadString()),
		Name:             r.ReadString(),
		AssemblyName:     r.ReadString(),
		Language:         r.ReadString(),
		FilePath:         r.ReadString(),
		OutputFilePath:   r.ReadString(),
		DefaultNamespace: r.ReadString(),
		IsSubmission:     r.ReadBool(),
	}, nil
}

func encodeDocumentAttributes(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.DocumentAttributes](kind.DocumentAttributes, value)
	if err != nil {
		return err
	}
	w.WriteString(string(v.ID))
	w.WriteString(v.Name)
	w.WriteStrings(v.Folders)
	w.WriteString(v.FilePath)
	w.WriteInt32(int32(v.SourceKind))
	w.WriteBool(v.IsGenerated)
	return nil
}

func decodeDocumentAttributes(_ context.Context, r *wire.Reader) (any, error) {
	return &ir.DocumentAttributes{
		ID:          ir.DocumentID(r.ReadString()),
		Name:        r.ReadString(),
		Folders:     r.ReadStrings(),
		FilePath:    r.ReadString(),
		SourceKind:  ir.SourceKind(r.ReadInt32()),
		IsGenerated: r.ReadBool(),
	}, nil
}

// Compilation option payloads are JSON; RFC 8785 canonicalization makes key
// order and whitespace irrelevant to the checksum.
func encodeCompilationOptions(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.CompilationOptions](kind.CompilationOptions, value)
	if err != nil {
		return err
	}
	payload := v.Payload
	if len(payload) > 0 {
		payload, err = jcs.Transform(payload)
		if err != nil {
			return fmt.Errorf("canonicalize compilation options: %w", err)
		}
	}
	w.WriteString(v.Language)
	w.WriteBytes(payload)
	return nil
}

func decodeCompilationOptions(_ context.Context, r *wire.Reader) (any, error) {
	v := &ir.CompilationOptions{Language: r.ReadString()}
	if payload := r.ReadBytes(); len(payload) > 0 {
		v.Payload = payload
	}
	return v, nil
}

func encodeParseOptions(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.ParseOptions](kind.ParseOptions, value)
	if err != nil {
		return err
	}
	w.WriteString(v.Language)
	w.WriteString(v.LanguageVersion)
	w.WriteStrings(v.PreprocessorSymbols)
	w.WriteInt32(v.DocumentationMode)
	keys := v.SortedFeatureKeys()
	w.WriteLength(len(keys))
	for _, k := range keys {
		w.WriteString(k)
		w.WriteString(v.Features[k])
	}
	return nil
}

func decodeParseOptions(_ context.Context, r *wire.Reader) (any, error) {
	v := &ir.ParseOptions{
		Language:            r.ReadString(),
		LanguageVersion:     r.ReadString(),
		PreprocessorSymbols: r.ReadStrings(),
		DocumentationMode:   r.ReadInt32(),
	}
	n := r.ReadLength()
	if n > 0 {
		v.Features = make(map[string]string, wire.CapHint(n))
		for range n {
			k := r.ReadString()
			v.Features[k] = r.ReadString()
			if r.Err() != nil {
				break
			}
		}
	}
	return v, nil
}

func encodeProjectReference(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.ProjectReference](kind.ProjectReference, value)
	if err != nil {
		return err
	}
	w.WriteString(string(v.ProjectID))
	w.WriteStrings(v.Aliases)
	w.WriteBool(v.EmbedInteropTypes)
	return nil
}

func decodeProjectReference(_ context.Context, r *wire.Reader) (any, error) {
	return &ir.ProjectReference{
		ProjectID:         ir.ProjectID(r.ReadString()),
		Aliases:           r.ReadStrings(),
		EmbedInteropTypes: r.ReadBool(),
	}, nil
}

func encodeOptionSet(_ context.Context, value any, w *wire.Writer) error {
	v, err := as[ir.OptionSet](kind.OptionSet, value)
	if err != nil {
		return err
	}
	values := v.Values
	if values == nil {
		values = ir.MapValue{}
	}
	data, err := ir.MarshalCanonical(values)
	if err != nil {
		return fmt.Errorf("canonicalize option set: %w", err)
	}
	w.WriteBytes(data)
	return nil
}

func decodeOptionSet(_ context.Context, r *wire.Reader) (any, error) {
	data := r.ReadBytes()
	if r.Err() != nil {
		return nil, r.Err()
	}
	var values ir.MapValue
	if err := values.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("option set payload: %w", err)
	}
	return &ir.OptionSet{Values: values}, nil
}
