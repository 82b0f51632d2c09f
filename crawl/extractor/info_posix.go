package extractor

import (
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/nci/stacube/utils"
)

// PatternVariables are the variables a crawl pattern may reference.
var PatternVariables = []string{"path", "type"}

// ExtractPosix crawls rootDir for STAC item documents and writes one
// record per item to out. onItem, when set, sees every item in the
// order it was written.
func ExtractPosix(rootDir string, conc int, pattern string, followSymlink bool, outputFormat string, out io.Writer, onItem func(*ItemInfo)) error {
	absRootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}

	expr, err := utils.CompileExpression(pattern, PatternVariables...)
	if err != nil {
		return err
	}

	crawler := NewPosixCrawler(conc, expr, followSymlink, outputFormat, out)
	crawler.OnItem = onItem
	return crawler.Crawl(absRootDir)
}

func GetPosixInfo(filePath string, fStat os.FileInfo) *PosixInfo {
	stat := fStat.Sys().(*syscall.Stat_t)
	fileSignature := fmt.Sprintf("%s%d%d%d%d", filePath, stat.Ino, stat.Size, stat.Mtim.Sec, stat.Mtim.Nsec)
	return &PosixInfo{
		FilePath: filePath,
		INode:    stat.Ino,
		Size:     stat.Size,
		MTime:    time.Unix(int64(stat.Mtim.Sec), int64(stat.Mtim.Nsec)).UTC(),
		CTime:    time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec)).UTC(),
		ID:       fmt.Sprintf("%x", md5.Sum([]byte(fileSignature))),
	}
}

const DefaultMaxPosixErrors = 1000

type PosixCrawler struct {
	Outputs       chan *ItemInfo
	Error         chan error
	OnItem        func(*ItemInfo)
	wg            sync.WaitGroup
	concLimit     chan struct{}
	outputDone    chan struct{}
	pattern       *utils.Expression
	followSymlink bool
	outputFormat  string
	out           io.Writer
}

type DirEntInfo struct {
	Name string
	Mode uint8
}

func NewPosixCrawler(conc int, pattern *utils.Expression, followSymlink bool, outputFormat string, out io.Writer) *PosixCrawler {
	if conc < 1 {
		conc = 1
	}
	if out == nil {
		out = os.Stdout
	}
	crawler := &PosixCrawler{
		Outputs:       make(chan *ItemInfo, 4096),
		Error:         make(chan error, 100),
		wg:            sync.WaitGroup{},
		concLimit:     make(chan struct{}, conc),
		outputDone:    make(chan struct{}, 1),
		pattern:       pattern,
		followSymlink: followSymlink,
		outputFormat:  outputFormat,
		out:           out,
	}
	return crawler
}

func (pc *PosixCrawler) Crawl(currPath string) error {
	go pc.outputResult()

	pc.wg.Add(1)
	pc.concLimit <- struct{}{}
	pc.crawlDir(currPath, false)
	pc.wg.Wait()

	close(pc.Outputs)
	<-pc.outputDone

	close(pc.Error)
	var errs []string
	for err := range pc.Error {
		errs = append(errs, err.Error())
		if len(errs) >= DefaultMaxPosixErrors {
			errs = append(errs, " ... too many errors")
			break
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "\n"))
	}
	return nil
}

func (pc *PosixCrawler) reportError(err error) {
	select {
	case pc.Error <- err:
	default:
	}
}

func (pc *PosixCrawler) crawlDir(currPath string, serialised bool) {
	defer pc.wg.Done()
	if !serialised {
		defer func() { <-pc.concLimit }()
	}
	files, err := readDir(currPath)
	if err != nil {
		pc.reportError(err)
		return
	}

	for _, fi := range files {
		filePath := path.Join(currPath, fi.Name)
		fileMode := fi.Mode

		var fStat os.FileInfo
		if fileMode == syscall.DT_LNK {
			if !pc.followSymlink {
				continue
			}
			fStat, err = os.Stat(filePath)
			if err != nil {
				pc.reportError(err)
				continue
			}

			fMode := fStat.Mode()
			if fMode.IsDir() {
				fileMode = syscall.DT_DIR
			} else if fMode.IsRegular() {
				fileMode = syscall.DT_REG
			}
		}

		if fileMode != syscall.DT_DIR && fileMode != syscall.DT_REG {
			continue
		}

		if pc.pattern != nil {
			result, err := pc.evaluatePatternExpression(filePath, fileMode)
			if err != nil {
				pc.reportError(err)
				continue
			}
			if !result {
				continue
			}
		}

		if fileMode == syscall.DT_DIR {
			pc.wg.Add(1)
			select {
			case pc.concLimit <- struct{}{}:
				go func(p string) {
					pc.crawlDir(p, false)
				}(filePath)
			default:
				pc.crawlDir(filePath, true)
			}
			continue
		}

		if !strings.HasSuffix(fi.Name, ".json") {
			continue
		}

		info, err := ExtractItem(filePath)
		if err != nil {
			pc.reportError(err)
			continue
		}
		if info == nil {
			continue
		}

		if fStat == nil {
			fStat, err = os.Lstat(filePath)
			if err != nil {
				pc.reportError(err)
				continue
			}
		}
		info.Posix = GetPosixInfo(filePath, fStat)
		pc.Outputs <- info
	}
}

func readDir(currDir string) ([]DirEntInfo, error) {
	parentDir := filepath.Dir(currDir)

	dhParent, err := os.Open(parentDir)
	if err != nil {
		return nil, fmt.Errorf("Could not open dir: %s", err.Error())
	}
	defer dhParent.Close()
	dirFd := int(dhParent.Fd())

	file := filepath.Base(currDir)

	dh, err := syscall.Openat(dirFd, file, syscall.O_RDONLY, 0777)
	if err != nil {
		return nil, fmt.Errorf("Could not open %s: %s", currDir, err.Error())
	}
	defer syscall.Close(dh)

	origBuf := make([]byte, 4096)
	var entries []DirEntInfo
	for {
		n, errno := syscall.ReadDirent(dh, origBuf)
		if errno != nil {
			return nil, fmt.Errorf("Could not read dirent: %v", errno)
		}
		if n <= 0 {
			break
		}

		buf := origBuf[0:n]
		for len(buf) > 0 {
			dirent := (*syscall.Dirent)(unsafe.Pointer(&buf[0]))
			buf = buf[dirent.Reclen:]
			if dirent.Ino == 0 {
				continue
			}
			ii := 0
			for ; ii < len(dirent.Name); ii++ {
				if dirent.Name[ii] == 0 {
					break
				}
			}
			bytes := (*[256]byte)(unsafe.Pointer(&dirent.Name[0]))
			name := string(bytes[:][:ii])
			if name == "." || name == ".." {
				continue
			}

			if dirent.Type == syscall.DT_UNKNOWN {
				st, err := os.Lstat(path.Join(currDir, name))
				if err != nil {
					return nil, err
				}
				mode := st.Mode()
				if mode.IsDir() {
					dirent.Type = syscall.DT_DIR
				} else if mode.IsRegular() {
					dirent.Type = syscall.DT_REG
				} else if mode&os.ModeSymlink == os.ModeSymlink {
					dirent.Type = syscall.DT_LNK
				}
			}

			entries = append(entries, DirEntInfo{Name: name, Mode: dirent.Type})
		}
	}
	return entries, nil
}

func (pc *PosixCrawler) evaluatePatternExpression(filePath string, fileMode uint8) (bool, error) {
	var fileType string
	if fileMode == syscall.DT_DIR {
		fileType = "d"
	} else if fileMode == syscall.DT_REG {
		fileType = "f"
	}

	ok, err := pc.pattern.Match(map[string]interface{}{"type": fileType, "path": filePath})
	if err != nil {
		return false, fmt.Errorf("pattern expression: %v", err)
	}
	return ok, nil
}

func (pc *PosixCrawler) outputResult() {
	for info := range pc.Outputs {
		out, err := json.Marshal(info)
		if err != nil {
			pc.reportError(fmt.Errorf("%s: %v", info.Path, err))
			continue
		}
		rec := string(out)
		if pc.outputFormat == "tsv" {
			rec = fmt.Sprintf("%s\tstac\t%s", info.Path, rec)
		}
		fmt.Fprintf(pc.out, "%s\n", rec)
		if pc.OnItem != nil {
			pc.OnItem(info)
		}
	}
	pc.outputDone <- struct{}{}
}
