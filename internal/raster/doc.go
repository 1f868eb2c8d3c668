// Package raster holds the categorical grid model shared by every stage of
// the focal metric engine.
//
// Responsibilities: the in-memory class grid, the read-only Block view handed
// to the patch labeler, rectangle arithmetic for tiles and halos, and the
// Source contract implemented by both in-memory grids and tiled readers.
// Key types: Grid, Block, Rect, Georef, Source.
//
// No file format code lives here; codecs belong to internal/rasterio.
package raster
