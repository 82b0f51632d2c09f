package gdalprocess

// #include <stdlib.h>
// #include "gdal.h"
// #include "ogr_srs_api.h"
// #include "cpl_string.h"
// #cgo pkg-config: gdal
import "C"

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
)

// EncodeGeoTIFF writes r as a single band, deflate compressed GeoTIFF.
func (p *Process) EncodeGeoTIFF(path string, r *raster.Float32Raster, grid reconcile.GridGeometry) error {
	if r.Width != grid.Shape.Cols || r.Height != grid.Shape.Rows {
		return fmt.Errorf("gdal: raster %dx%d does not match grid %dx%d", r.Width, r.Height, grid.Shape.Cols, grid.Shape.Rows)
	}
	if len(r.Data) != r.Width*r.Height || len(r.Data) == 0 {
		return fmt.Errorf("gdal: raster holds %d values for %dx%d", len(r.Data), r.Width, r.Height)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	driverNameC := C.CString("GTiff")
	defer C.free(unsafe.Pointer(driverNameC))
	hDriver := C.GDALGetDriverByName(driverNameC)
	if hDriver == nil {
		return fmt.Errorf("gdal: GTiff driver unavailable")
	}

	var opts **C.char
	compressC, deflateC := C.CString("COMPRESS"), C.CString("DEFLATE")
	defer C.free(unsafe.Pointer(compressC))
	defer C.free(unsafe.Pointer(deflateC))
	opts = C.CSLSetNameValue(opts, compressC, deflateC)
	defer C.CSLDestroy(opts)

	pathC := C.CString(path)
	defer C.free(unsafe.Pointer(pathC))
	hDstDS := C.GDALCreate(hDriver, pathC, C.int(r.Width), C.int(r.Height), 1, C.GDT_Float32, opts)
	if hDstDS == nil {
		return fmt.Errorf("gdal: create %s: %s", path, C.GoString(C.CPLGetLastErrorMsg()))
	}

	if epsg := grid.CRS.Code(); epsg > 0 {
		hSRS := C.OSRNewSpatialReference(nil)
		defer C.OSRDestroySpatialReference(hSRS)
		C.OSRImportFromEPSG(hSRS, C.int(epsg))
		var projWKT *C.char
		C.OSRExportToWkt(hSRS, &projWKT)
		C.GDALSetProjection(hDstDS, projWKT)
		C.VSIFree(unsafe.Pointer(projWKT))
	}

	geot := grid.Affine.GeoTransform()
	C.GDALSetGeoTransform(hDstDS, (*C.double)(unsafe.Pointer(&geot[0])))

	hBand := C.GDALGetRasterBand(hDstDS, 1)
	C.GDALSetRasterNoDataValue(hBand, C.double(r.NoData))
	gerr := C.GDALRasterIO(hBand, C.GF_Write, 0, 0, C.int(r.Width), C.int(r.Height), unsafe.Pointer(&r.Data[0]), C.int(r.Width), C.int(r.Height), C.GDT_Float32, 0, 0)
	C.GDALClose(hDstDS)
	if gerr != 0 {
		return fmt.Errorf("gdal: write %s: %s", path, C.GoString(C.CPLGetLastErrorMsg()))
	}

	p.Log.Debug().Str("path", path).Int("width", r.Width).Int("height", r.Height).Msg("encoded geotiff")
	return nil
}
