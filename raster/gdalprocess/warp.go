package gdalprocess

// #include <stdlib.h>
// #include "gdal.h"
// #include "gdalwarper.h"
// #include "gdal_alg.h"
// #include "ogr_srs_api.h"
// #include "cpl_string.h"
// #cgo pkg-config: gdal
// int
// warp_operation(GDALDatasetH hSrcDS, GDALDatasetH hDstDS, int band, int hasNoData, double noData)
// {
//        GDALWarpOptions *psWOptions;
//        int err;
//
//        psWOptions = GDALCreateWarpOptions();
//        psWOptions->nBandCount = 1;
//        psWOptions->panSrcBands = (int *) CPLMalloc(sizeof(int) * 1);
//        psWOptions->panSrcBands[0] = band;
//        psWOptions->panDstBands = (int *) CPLMalloc(sizeof(int) * 1);
//        psWOptions->panDstBands[0] = 1;
//        if(hasNoData) {
//            psWOptions->padfSrcNoDataReal = (double *) CPLMalloc(sizeof(double));
//            psWOptions->padfSrcNoDataReal[0] = noData;
//            psWOptions->padfDstNoDataReal = (double *) CPLMalloc(sizeof(double));
//            psWOptions->padfDstNoDataReal[0] = noData;
//        }
//
//        err = GDALReprojectImage(hSrcDS, GDALGetProjectionRef(hSrcDS), hDstDS, GDALGetProjectionRef(hDstDS), GRA_NearestNeighbour, 0.0, 0.0, NULL, NULL, psWOptions);
//        GDALDestroyWarpOptions(psWOptions);
//
//        return err;
// }
import "C"

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/nci/stacube/raster"
	"github.com/nci/stacube/reconcile"
)

// Warp reprojects band of path into grid. The canvas starts as the
// band's nodata, or NaN when the band declares none.
func (p *Process) Warp(ctx context.Context, path string, band int, grid reconcile.GridGeometry) (*raster.Float32Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if grid.Shape.Rows <= 0 || grid.Shape.Cols <= 0 {
		return nil, fmt.Errorf("gdal: warp %s into empty grid", path)
	}
	epsg := grid.CRS.Code()
	if epsg <= 0 {
		return nil, fmt.Errorf("gdal: warp %s: target grid has no EPSG code", path)
	}

	filePathCStr := C.CString(path)
	defer C.free(unsafe.Pointer(filePathCStr))

	hSrcDS := C.GDALOpen(filePathCStr, C.GA_ReadOnly)
	if hSrcDS == nil {
		return nil, fmt.Errorf("gdal: open %s: %s", path, C.GoString(C.CPLGetLastErrorMsg()))
	}
	defer C.GDALClose(hSrcDS)

	bandH := C.GDALGetRasterBand(hSrcDS, C.int(band))
	if bandH == nil {
		return nil, fmt.Errorf("gdal: %s has no band %d", path, band)
	}
	var hasNoData C.int
	nodata := float64(C.GDALGetRasterNoDataValue(bandH, &hasNoData))
	if hasNoData == 0 {
		nodata = math.NaN()
	}

	canvas := raster.NewFloat32Raster(grid.Shape.Cols, grid.Shape.Rows, nodata)
	memStr := C.CString(fmt.Sprintf("MEM:::DATAPOINTER=%d,PIXELS=%d,LINES=%d,DATATYPE=Float32", uintptr(unsafe.Pointer(&canvas.Data[0])), canvas.Width, canvas.Height))
	defer C.free(unsafe.Pointer(memStr))
	hDstDS := C.GDALOpen(memStr, C.GA_Update)
	if hDstDS == nil {
		return nil, fmt.Errorf("gdal: cannot create warp canvas")
	}
	defer C.GDALClose(hDstDS)

	hSRS := C.OSRNewSpatialReference(nil)
	defer C.OSRDestroySpatialReference(hSRS)
	C.OSRImportFromEPSG(hSRS, C.int(epsg))
	var projWKT *C.char
	C.OSRExportToWkt(hSRS, &projWKT)
	defer C.VSIFree(unsafe.Pointer(projWKT))

	geot := grid.Affine.GeoTransform()
	C.GDALSetProjection(hDstDS, projWKT)
	C.GDALSetGeoTransform(hDstDS, (*C.double)(unsafe.Pointer(&geot[0])))

	cErr := C.warp_operation(hSrcDS, hDstDS, C.int(band), hasNoData, C.double(nodata))
	runtime.KeepAlive(canvas)
	if cErr != 0 {
		return nil, fmt.Errorf("gdal: warp %s band %d: %s", path, band, C.GoString(C.CPLGetLastErrorMsg()))
	}

	p.Log.Debug().Str("path", path).Int("band", band).Int("width", canvas.Width).Int("height", canvas.Height).Msg("warped")
	return canvas, nil
}
