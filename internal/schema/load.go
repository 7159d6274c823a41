package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relq/internal/model"
)

// Error codes for model loading. The CLI reports them verbatim.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoModels    = "E008" // No `model` struct in the schema

	ErrCodeInvalidType         = "E101" // Unknown property primitive
	ErrCodeMissingKey          = "E102" // Model without a key property
	ErrCodeUnknownModel        = "E103" // Unknown parent or relationship target
	ErrCodeInvalidRelationship = "E104" // Bad relationship kind or foreign key
	ErrCodeInheritanceCycle    = "E105" // Model inherits from itself
	ErrCodeInvalidOrder        = "E106" // Bad default order entry
	ErrCodeInvalidProperty     = "E107" // Duplicate or malformed property
)

// MapFieldToErrorCode maps a CompileError field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "type":
		return ErrCodeInvalidType
	case "key":
		return ErrCodeMissingKey
	case "parent", "target":
		return ErrCodeUnknownModel
	case "kind", "relationship":
		return ErrCodeInvalidRelationship
	case "cycle":
		return ErrCodeInheritanceCycle
	case "order":
		return ErrCodeInvalidOrder
	case "property", "properties":
		return ErrCodeInvalidProperty
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

// LoadError is an error that occurred while loading model definitions.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadResult holds the models loaded from a directory.
type LoadResult struct {
	Registry  *model.Registry
	CUEValue  cue.Value
	FileCount int
}

// Load reads every CUE file in dir as one package and compiles its `model`
// struct. All returned errors are *LoadError.
func Load(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, convertCompileError(formatCUEError(err), ErrCodeBuildFailed)
	}

	reg, err := compileRoot(value)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Registry: reg, CUEValue: value, FileCount: len(cueFiles)}, nil
}

// LoadString compiles model definitions from CUE source. filename is used
// in error positions.
func LoadString(filename, src string) (*model.Registry, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, convertCompileError(formatCUEError(err), ErrCodeBuildFailed)
	}
	return compileRoot(value)
}

func compileRoot(value cue.Value) (*model.Registry, error) {
	modelsVal := value.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoModels, Message: "no model definitions found"}
	}
	reg, err := CompileModels(modelsVal)
	if err != nil {
		return nil, convertCompileError(err, ErrCodeGeneric)
	}
	if reg.Len() == 0 {
		return nil, &LoadError{Code: ErrCodeNoModels, Message: "no model definitions found"}
	}
	return reg, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, fallback string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: fallback, Message: err.Error()}
}
