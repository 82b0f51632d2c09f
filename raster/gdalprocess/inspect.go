package gdalprocess

// #include <stdlib.h>
// #include <string.h>
// #include "gdal.h"
// #include "ogr_srs_api.h"
// #include "cpl_error.h"
// #cgo pkg-config: gdal
// int
// projection_epsg(const char *wkt)
// {
//        OGRSpatialReferenceH hSRS;
//        const char *code;
//        int epsg = 0;
//
//        if(wkt == NULL || strlen(wkt) == 0) {
//            return 0;
//        }
//        hSRS = OSRNewSpatialReference(wkt);
//        if(hSRS == NULL) {
//            return 0;
//        }
//        OSRAutoIdentifyEPSG(hSRS);
//        code = OSRGetAuthorityCode(hSRS, NULL);
//        if(code != NULL) {
//            epsg = atoi(code);
//        }
//        OSRDestroySpatialReference(hSRS);
//        return epsg;
// }
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/nci/stacube/raster"
	"github.com/rs/zerolog"
)

// Process is the GDAL backed raster.Driver.
type Process struct {
	Log zerolog.Logger
}

func New(log zerolog.Logger) *Process {
	InitGdal()
	return &Process{Log: log}
}

func optional(v C.double, ok C.int) *float64 {
	if ok == 0 {
		return nil
	}
	f := float64(v)
	return &f
}

func (p *Process) Inspect(path string) (*raster.Info, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	hDataset := C.GDALOpen(cPath, C.GA_ReadOnly)
	if hDataset == nil {
		return nil, fmt.Errorf("gdal: open %s: %s", path, C.GoString(C.CPLGetLastErrorMsg()))
	}
	defer C.GDALClose(hDataset)

	info := &raster.Info{
		Path:   path,
		Driver: C.GoString(C.GDALGetDriverShortName(C.GDALGetDatasetDriver(hDataset))),
		Width:  int(C.GDALGetRasterXSize(hDataset)),
		Height: int(C.GDALGetRasterYSize(hDataset)),
	}

	dArr := [6]C.double{}
	if C.GDALGetGeoTransform(hDataset, &dArr[0]) == C.CE_None {
		for i, v := range dArr {
			info.GeoTransform[i] = float64(v)
		}
	}
	info.EPSG = int(C.projection_epsg(C.GDALGetProjectionRef(hDataset)))

	for b := 1; b <= int(C.GDALGetRasterCount(hDataset)); b++ {
		hBand := C.GDALGetRasterBand(hDataset, C.int(b))
		var ok C.int
		band := raster.Band{
			DataType:    C.GoString(C.GDALGetDataTypeName(C.GDALGetRasterDataType(hBand))),
			Unit:        C.GoString(C.GDALGetRasterUnitType(hBand)),
			Description: C.GoString(C.GDALGetDescription(C.GDALMajorObjectH(hBand))),
		}
		nodata := C.GDALGetRasterNoDataValue(hBand, &ok)
		band.NoData = optional(nodata, ok)
		scale := C.GDALGetRasterScale(hBand, &ok)
		band.Scale = optional(scale, ok)
		offset := C.GDALGetRasterOffset(hBand, &ok)
		band.Offset = optional(offset, ok)
		info.Bands = append(info.Bands, band)
	}

	p.Log.Debug().Str("path", path).Str("driver", info.Driver).Int("epsg", info.EPSG).Int("bands", len(info.Bands)).Msg("inspected raster")
	return info, nil
}
