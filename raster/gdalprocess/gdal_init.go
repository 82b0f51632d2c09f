package gdalprocess

// #include "gdal.h"
// #include "gdal_frmts.h"
// #cgo pkg-config: gdal
import "C"

import (
	"os"
	"sync"
)

var initOnce sync.Once

// InitGdal sets GDAL's environment defaults and registers drivers with
// GTiff first. Safe to call more than once.
func InitGdal() {
	initOnce.Do(func() {
		setDefaultEnv("GDAL_PAM_ENABLED", "NO")
		setDefaultEnv("GDAL_DISABLE_READDIR_ON_OPEN", "EMPTY_DIR")
		setDefaultEnv("GDAL_MAX_DATASET_POOL_SIZE", "10")
		setDefaultEnv("CPL_VSIL_CURL_ALLOWED_EXTENSIONS", ".tif,.tiff,.TIF")
		registerGDALDrivers()
	})
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}

func registerGDALDrivers() {
	// Drivers are interrogated in a linear scan when opening, so the
	// ones we read most are registered ahead of the rest.
	var haveGTiff, haveJP2OpenJPEG bool

	C.GDALAllRegister()
	for i := 0; i < int(C.GDALGetDriverCount()); i++ {
		driver := C.GDALGetDriver(C.int(i))
		switch C.GoString(C.GDALGetDriverShortName(driver)) {
		case "GTiff":
			haveGTiff = true
		case "JP2OpenJPEG":
			haveJP2OpenJPEG = true
		}
	}

	for C.GDALGetDriverCount() > 0 {
		C.GDALDeregisterDriver(C.GDALGetDriver(0))
	}

	if haveGTiff {
		C.GDALRegister_GTiff()
	}
	if haveJP2OpenJPEG {
		C.GDALRegister_JP2OpenJPEG()
	}
	C.GDALAllRegister()
}
