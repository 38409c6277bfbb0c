package loaders

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

// BinaryLoader reads a file as little-endian 32-bit words.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(buf)%4 != 0 {
		return nil, errors.Newf("%s: size %d is not a multiple of 4", path, len(buf))
	}

	res := BytesToBytecode(buf)
	return &metadata.Resource{
		Type:     metadata.ResourceTypeBinary,
		Name:     nameParam(params),
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     res,
	}, nil
}

func (bl *BinaryLoader) Unload(res *metadata.Resource) error {
	res.Data = nil
	return nil
}

func BytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func nameParam(params interface{}) string {
	if p, ok := params.(map[string]string); ok {
		return p["name"]
	}
	return ""
}
