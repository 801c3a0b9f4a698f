package utils

import (
	"bytes"
	"compress/zlib"
	"io"

	errors "github.com/pkg/errors"
)

func Compress(plain_text []byte) []byte {
	var b bytes.Buffer
	w, _ := zlib.NewWriterLevel(&b, zlib.BestSpeed)
	w.Write(plain_text)
	w.Close()

	return b.Bytes()
}

func Uncompress(compressed []byte) ([]byte, error) {
	result := bytes.NewBuffer(make([]byte, 0, len(compressed)*2))
	z, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer z.Close()

	_, err = io.Copy(result, z)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return result.Bytes(), nil
}
