// Package model describes accelerator machines declaratively and drives an
// engine from those descriptions.
//
// A model definition lives in a `*.model.hcl` file:
//
//	model "lhc" {
//	  extends          = ["lhc-base"]
//	  repository       = "repo"
//	  init_files       = ["lhc.seq"]
//	  default_optic    = "injection"
//	  default_sequence = "lhcb1"
//
//	  beam "b1" {
//	    particle = "proton"
//	    energy   = 450
//	  }
//
//	  optic "injection" {
//	    init_files = ["opt_inj.madx"]
//	  }
//
//	  sequence "lhcb1" {
//	    beam          = "b1"
//	    default_range = "all"
//
//	    range "all" {
//	      first         = "#s"
//	      last          = "#e"
//	      default_twiss = "start"
//
//	      twiss_initial "start" {
//	        betx = 10
//	        bety = 10
//	      }
//	    }
//	  }
//	}
//
// A Locator finds definitions by name and resolves `extends` chains; a
// Factory turns a definition into a Model bound to an engine.
package model
